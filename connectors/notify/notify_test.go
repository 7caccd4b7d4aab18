package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/godbus/dbus/v5"
	"github.com/hannesrauhe/bttimeout/base"
	"github.com/hannesrauhe/bttimeout/utils"
	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func testContext() *base.Context {
	return base.NewContext(logrus.StandardLogger(), "test")
}

type notifyCall struct {
	Replaces uint32
	Icon     string
	Summary  string
}

// fakeNotifications answers Notify like a notification server, counting ids up from 1
type fakeNotifications struct {
	dbus.BusObject
	calls []notifyCall
	fail  error
}

func (f *fakeNotifications) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	if method != notifyMethod || len(args) != 8 {
		return &dbus.Call{Err: errors.New("unexpected call to " + method)}
	}
	if f.fail != nil {
		return &dbus.Call{Err: f.fail}
	}
	f.calls = append(f.calls, notifyCall{Replaces: args[1].(uint32), Icon: args[2].(string), Summary: args[3].(string)})
	return &dbus.Call{Body: []interface{}{uint32(len(f.calls))}}
}

func newTestDesktop(config DesktopConfig) (*DesktopNotifier, *fakeNotifications, *int) {
	fake := &fakeNotifications{}
	connects := 0
	d := NewDesktopNotifier(logrus.StandardLogger(), config)
	d.connect = func() (*dbus.Conn, dbus.BusObject, error) {
		connects++
		return nil, fake, nil
	}
	return d, fake, &connects
}

func TestNotificationTexts(t *testing.T) {
	w := Warning(90 * time.Second)
	assert.Equal(t, w.Body, "Bluetooth adapter will turn off in 1m30s due to inactivity.")
	assert.Equal(t, w.Icon, "bluetooth-symbolic")
	assert.Equal(t, w.Kind, KindWarning)

	off := PoweredOff()
	assert.Equal(t, off.Title, "Bluetooth Adapter Turned Off")
	assert.Equal(t, off.Remaining, time.Duration(0))
}

func inSession(n Notification, session string) Notification {
	n.Session = session
	return n
}

func TestDesktopReplacesPreviousWarning(t *testing.T) {
	d, fake, connects := newTestDesktop(DefaultConfig.Desktop)
	ctx := testContext()

	assert.NilError(t, d.Notify(ctx, inSession(Warning(time.Minute), "session:1")))
	assert.NilError(t, d.Notify(ctx, inSession(Warning(30*time.Second), "session:1")))
	assert.NilError(t, d.Notify(ctx, inSession(PoweredOff(), "session:1")))
	assert.NilError(t, d.Notify(ctx, inSession(Warning(time.Minute), "session:2")))

	assert.DeepEqual(t, fake.calls, []notifyCall{
		{Replaces: 0, Icon: "bluetooth-symbolic", Summary: "Bluetooth Timeout Warning"},
		{Replaces: 1, Icon: "bluetooth-symbolic", Summary: "Bluetooth Timeout Warning"},
		{Replaces: 2, Icon: "bluetooth-disabled-symbolic", Summary: "Bluetooth Adapter Turned Off"},
		// the final message stays, the next session starts fresh
		{Replaces: 0, Icon: "bluetooth-symbolic", Summary: "Bluetooth Timeout Warning"},
	})
	assert.Equal(t, *connects, 1)
}

func TestDesktopKeepsWarningOfCancelledSession(t *testing.T) {
	d, fake, _ := newTestDesktop(DefaultConfig.Desktop)
	ctx := testContext()

	// session 1 is cancelled by a connect after its first warning
	assert.NilError(t, d.Notify(ctx, inSession(Warning(time.Minute), "session:1")))
	assert.NilError(t, d.Notify(ctx, inSession(Warning(time.Minute), "session:2")))
	assert.NilError(t, d.Notify(ctx, inSession(Warning(30*time.Second), "session:2")))
	// notifications without a session never replace anything
	assert.NilError(t, d.Notify(ctx, Warning(10*time.Second)))

	assert.Equal(t, fake.calls[1].Replaces, uint32(0))
	assert.Equal(t, fake.calls[2].Replaces, uint32(2))
	assert.Equal(t, fake.calls[3].Replaces, uint32(0))
}

func TestDesktopWithoutReplace(t *testing.T) {
	cfg := DefaultConfig.Desktop
	cfg.ReplacePrevious = false
	d, fake, _ := newTestDesktop(cfg)

	assert.NilError(t, d.Notify(testContext(), inSession(Warning(time.Minute), "session:1")))
	assert.NilError(t, d.Notify(testContext(), inSession(Warning(30*time.Second), "session:1")))
	assert.Equal(t, fake.calls[1].Replaces, uint32(0))
}

func TestDesktopReconnectsAfterFailure(t *testing.T) {
	d, fake, connects := newTestDesktop(DefaultConfig.Desktop)

	fake.fail = errors.New("org.freedesktop.DBus.Error.ServiceUnknown")
	assert.ErrorContains(t, d.Notify(testContext(), Warning(time.Minute)), "ServiceUnknown")
	fake.fail = nil
	assert.NilError(t, d.Notify(testContext(), Warning(time.Minute)))
	assert.Equal(t, *connects, 2)
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakeMQTTClient struct {
	MQTT.Client
	published []published
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token {
	c.published = append(c.published, published{topic: topic, qos: qos, retain: retained, payload: payload.([]byte)})
	return &fakeToken{}
}

func TestMQTTPublishesJSON(t *testing.T) {
	client := &fakeMQTTClient{}
	cfg := MQTTConfig{Enabled: true, Server: "tcp://localhost:1883", Topic: "home/bt", Qos: 1, Retain: true}
	m := &MQTTNotifier{config: cfg, log: logrus.StandardLogger(), client: client}
	ctx := testContext()

	assert.NilError(t, m.Notify(ctx, Warning(10*time.Second)))
	assert.Assert(t, is.Len(client.published, 1))
	p := client.published[0]
	assert.Equal(t, p.topic, "home/bt")
	assert.Equal(t, p.qos, byte(1))
	assert.Assert(t, p.retain)

	var payload mqttPayload
	assert.NilError(t, json.Unmarshal(p.payload, &payload))
	assert.Equal(t, payload.Kind, KindWarning)
	assert.Equal(t, payload.RemainingSeconds, int64(10))
	assert.Equal(t, payload.ID, ctx.GetID())

	assert.NilError(t, m.Notify(ctx, inSession(PoweredOff(), "session:7")))
	assert.NilError(t, json.Unmarshal(client.published[1].payload, &payload))
	assert.Equal(t, payload.Session, "session:7")
}

func TestMQTTVerifiesCertificatesByDefault(t *testing.T) {
	cfg := DefaultConfig.MQTT
	cfg.Server = "ssl://broker.example:8883"
	opts := mqttClientOptions(logrus.StandardLogger(), cfg)
	assert.Assert(t, !opts.TLSConfig.InsecureSkipVerify)
	assert.Equal(t, opts.Servers[0].String(), "ssl://broker.example:8883")

	cfg.InsecureSkipVerify = true
	opts = mqttClientOptions(logrus.StandardLogger(), cfg)
	assert.Assert(t, opts.TLSConfig.InsecureSkipVerify)
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	fail map[int64]bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if b.fail[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	b.sent = append(b.sent, msg)
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func TestTelegramSendsToAllChats(t *testing.T) {
	bot := &fakeBot{fail: map[int64]bool{2: true}}
	logins := 0
	tn := NewTelegramNotifier(logrus.StandardLogger(), TelegramConfig{Enabled: true, Token: "t", ChatIDs: []int64{1, 2, 3}})
	tn.newBot = func(token string) (telegramSender, error) {
		logins++
		return bot, nil
	}

	err := tn.Notify(testContext(), Warning(time.Minute))
	assert.ErrorContains(t, err, "chat 2")
	assert.Assert(t, is.Len(bot.sent, 2))
	assert.Equal(t, bot.sent[1].ChatID, int64(3))
	assert.Equal(t, bot.sent[0].Text, "Bluetooth Timeout Warning\nBluetooth adapter will turn off in 1m due to inactivity.")

	bot.fail = nil
	assert.NilError(t, tn.Notify(testContext(), PoweredOff()))
	assert.Assert(t, bot.sent[2].DisableNotification)
	assert.Equal(t, logins, 1)
}

func TestTelegramLoginFailure(t *testing.T) {
	tn := NewTelegramNotifier(logrus.StandardLogger(), TelegramConfig{Enabled: true, Token: "t", ChatIDs: []int64{1}})
	tn.newBot = func(token string) (telegramSender, error) {
		return nil, errors.New("Not Found")
	}
	assert.ErrorContains(t, tn.Notify(testContext(), PoweredOff()), "cannot log in")
}

type recordingNotifier struct {
	got []Notification
	err error
}

func (r *recordingNotifier) Notify(ctx *base.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestMultiNotifiesAll(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("broken")}
	working := &recordingNotifier{}

	err := Multi{failing, working}.Notify(testContext(), PoweredOff())
	assert.ErrorContains(t, err, "broken")
	assert.Assert(t, is.Len(failing.got, 1))
	assert.Assert(t, is.Len(working.got, 1))

	assert.NilError(t, Multi{}.Notify(testContext(), PoweredOff()))
}

func TestNewNotifier(t *testing.T) {
	cfg := DefaultConfig
	cfg.Enabled = false
	n, shutdown := NewNotifier(logrus.StandardLogger(), cfg)
	assert.Equal(t, n, Notifier(Discard{}))
	shutdown()

	cfg = DefaultConfig
	cfg.Telegram = TelegramConfig{Enabled: true, Token: "t", ChatIDs: []int64{1}}
	n, shutdown = NewNotifier(logrus.StandardLogger(), cfg)
	multi, ok := n.(Multi)
	assert.Assert(t, ok)
	assert.Assert(t, is.Len(multi, 2))
	shutdown()
}

func TestValidateConfig(t *testing.T) {
	cfg := DefaultConfig
	assert.NilError(t, cfg.Validate())

	cfg.MQTT.Enabled = true
	assert.Assert(t, errors.Is(cfg.Validate(), utils.ErrInvalidConfig))
	assert.ErrorContains(t, cfg.Validate(), "notifications.mqtt.server")

	cfg = DefaultConfig
	cfg.Telegram.Enabled = true
	cfg.Telegram.Token = "t"
	assert.ErrorContains(t, cfg.Validate(), "notifications.telegram")

	// disabled notifications are not checked
	cfg.Enabled = false
	assert.NilError(t, cfg.Validate())
}
