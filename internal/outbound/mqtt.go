package outbound

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/bms-bridge/internal/config"
	"github.com/taoyao-code/bms-bridge/internal/protocol/seplos"
)

// MQTT 将字段更新镜像到 MQTT，保留消息承载最新值，
// 并按 Home Assistant 自动发现约定发布传感器元数据。
type MQTT struct {
	client mqtt.Client
	prefix string
	log    *zap.Logger
}

// NewMQTT 连接 broker 并返回发布者；连接失败直接报错，不做启动期重试
func NewMQTT(cfg cfgpkg.MQTTConfig, log *zap.Logger) (*MQTT, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("bms-bridge-%d", time.Now().Unix())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Info("mqtt connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, tok.Error())
	}
	return &MQTT{client: client, prefix: cfg.Prefix, log: log}, nil
}

// Close 断开 MQTT 连接
func (p *MQTT) Close() {
	p.client.Disconnect(250)
}

func (p *MQTT) stateTopic(addr byte, key string) string {
	return fmt.Sprintf("%s/battery_%d/%s", p.prefix, addr, key)
}

func (p *MQTT) availabilityTopic(addr byte) string {
	return fmt.Sprintf("%s/battery_%d/state", p.prefix, addr)
}

// PublishUpdate 发布最新值，retain 让晚加入的订阅者立即拿到当前状态
func (p *MQTT) PublishUpdate(addr byte, key string, value float64) {
	payload := strconv.FormatFloat(value, 'f', -1, 64)
	tok := p.client.Publish(p.stateTopic(addr, key), 0, true, payload)
	go p.logIfFailed(tok, "publish value")
}

// PublishOnline 标记电池在线
func (p *MQTT) PublishOnline(addr byte) {
	tok := p.client.Publish(p.availabilityTopic(addr), 0, true, "online")
	go p.logIfFailed(tok, "publish availability")
}

// haDevice Home Assistant 设备信息（缩写键名为 HA 约定）
type haDevice struct {
	Identifiers  string `json:"ids"`
	Name         string `json:"name"`
	Manufacturer string `json:"mf"`
	Model        string `json:"mdl"`
}

// haOrigin 发现消息来源标识
type haOrigin struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// haSensor 单个传感器的自动发现配置
type haSensor struct {
	Name              string   `json:"name"`
	StateTopic        string   `json:"stat_t"`
	AvailabilityTopic string   `json:"avty_t"`
	UniqueID          string   `json:"uniq_id"`
	DeviceClass       string   `json:"dev_cla,omitempty"`
	StateClass        string   `json:"stat_cla,omitempty"`
	Unit              string   `json:"unit_of_meas,omitempty"`
	DisplayPrecision  int      `json:"suggested_display_precision"`
	Device            haDevice `json:"dev"`
	Origin            haOrigin `json:"origin"`
}

// PublishDiscovery 为电池的全部遥测字段发布 HA 自动发现配置。
// 参数页字段是配置项而非遥测，不进自动发现。
func (p *MQTT) PublishDiscovery(addr byte) {
	dev := haDevice{
		Identifiers:  fmt.Sprintf("seplos_bms_%d", addr),
		Name:         fmt.Sprintf("Seplos BMS %d", addr),
		Manufacturer: "Seplos",
		Model:        "BMSv3",
	}
	origin := haOrigin{Name: "bms-bridge"}

	for _, fd := range seplos.Table() {
		if fd.Page == seplos.PageParam {
			continue
		}
		key := fd.Key()
		sensor := haSensor{
			Name:              fd.Name,
			StateTopic:        p.stateTopic(addr, key),
			AvailabilityTopic: p.availabilityTopic(addr),
			UniqueID:          fmt.Sprintf("seplos_bms_%d_%s", addr, key),
			DeviceClass:       fd.DeviceClass,
			StateClass:        "measurement",
			Unit:              fd.Unit,
			DisplayPrecision:  fd.Decimals(),
			Device:            dev,
			Origin:            origin,
		}
		payload, err := json.Marshal(sensor)
		if err != nil {
			p.log.Error("marshal discovery config", zap.String("field", key), zap.Error(err))
			continue
		}
		topic := fmt.Sprintf("homeassistant/sensor/seplos_bms_%d/%s/config", addr, key)
		tok := p.client.Publish(topic, 0, true, payload)
		go p.logIfFailed(tok, "publish discovery")
	}
	p.log.Info("published discovery config", zap.Uint8("battery", addr))
}

func (p *MQTT) logIfFailed(tok mqtt.Token, op string) {
	if tok.Wait() && tok.Error() != nil {
		p.log.Warn("mqtt "+op+" failed", zap.Error(tok.Error()))
	}
}
