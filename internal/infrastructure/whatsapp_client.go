package infrastructure

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"replygate/internal/entities"
)

// DeviceClient is one linked WhatsApp device owned by a business.
type DeviceClient struct {
	Client     *whatsmeow.Client
	BusinessID string

	log    zerolog.Logger
	qrCode string
	qrLock sync.RWMutex
}

func NewDeviceClient(ctx context.Context, dbPath, businessID string, log zerolog.Logger) (*DeviceClient, error) {
	log = log.With().Str("component", "whatsapp_device").Str("business_id", businessID).Logger()

	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", waLog.Zerolog(log.With().Str("module", "Database").Logger()))
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Zerolog(log.With().Str("module", "Client").Logger()))
	return &DeviceClient{Client: client, BusinessID: businessID, log: log}, nil
}

// Connect resumes a stored session or starts pairing; QR codes are kept
// for GetQR while pairing is in progress.
func (d *DeviceClient) Connect(ctx context.Context) error {
	if d.Client.Store.ID != nil {
		if err := d.Client.Connect(); err != nil {
			return err
		}
		d.log.Info().Msg("WhatsApp device connected (existing session)")
		return nil
	}

	qrChan, err := d.Client.GetQRChannel(ctx)
	if err != nil {
		return err
	}
	if err := d.Client.Connect(); err != nil {
		return err
	}
	go d.watchQR(qrChan)
	return nil
}

func (d *DeviceClient) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		if evt.Event == whatsmeow.QRChannelEventCode {
			d.qrLock.Lock()
			d.qrCode = evt.Code
			d.qrLock.Unlock()
			d.log.Info().Msg("new pairing QR code")
			continue
		}
		d.log.Info().Str("event", evt.Event).Msg("login event")
		if evt.Event == whatsmeow.QRChannelSuccess.Event {
			d.qrLock.Lock()
			d.qrCode = ""
			d.qrLock.Unlock()
		}
	}
}

func (d *DeviceClient) GetQR() string {
	d.qrLock.RLock()
	defer d.qrLock.RUnlock()
	return d.qrCode
}

func (d *DeviceClient) IsLoggedIn() bool {
	return d.Client.Store.ID != nil
}

func (d *DeviceClient) IsConnected() bool {
	return d.Client.IsConnected() && d.Client.Store.ID != nil
}

// Status reports the pairing state for the dashboard.
func (d *DeviceClient) Status() entities.DeviceStatus {
	st := entities.DeviceStatus{
		BusinessID: d.BusinessID,
		Connected:  d.IsConnected(),
		Pairing:    d.GetQR() != "",
	}
	if d.Client.Store.ID != nil {
		st.Phone = d.Client.Store.ID.User
		st.Name = d.Client.Store.PushName
	}
	return st
}

func (d *DeviceClient) Logout(ctx context.Context) error {
	d.qrLock.Lock()
	d.qrCode = ""
	d.qrLock.Unlock()

	if err := d.Client.Logout(ctx); err != nil {
		return err
	}
	d.Client.Disconnect()
	return nil
}

func (d *DeviceClient) Disconnect() {
	d.Client.Disconnect()
}

// OnMessage registers handle for incoming one-to-one text messages.
func (d *DeviceClient) OnMessage(handle func(entities.InboundMessage)) {
	d.Client.AddEventHandler(func(evt any) {
		msg, ok := evt.(*events.Message)
		if !ok || msg.Info.IsFromMe || msg.Info.IsGroup {
			return
		}
		sender, text := ParseDeviceMessage(msg)
		if text == "" {
			return
		}
		handle(entities.InboundMessage{
			SenderID:   sender,
			Text:       text,
			BusinessID: d.BusinessID,
			Channel:    entities.ChannelWhatsAppDevice,
		})
	})
}

func (d *DeviceClient) Send(ctx context.Context, to, content string) (string, error) {
	jid, err := types.ParseJID(to + "@" + types.DefaultUserServer)
	if err != nil {
		return "", fmt.Errorf("invalid number format: %w", err)
	}
	resp, err := d.Client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(content),
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ParseDeviceMessage returns the sender number and text body of evt.
func ParseDeviceMessage(evt *events.Message) (string, string) {
	sender := evt.Info.Sender.User
	if evt.Message == nil {
		return sender, ""
	}
	var content string
	if evt.Message.Conversation != nil {
		content = evt.Message.GetConversation()
	} else if evt.Message.ExtendedTextMessage != nil {
		content = evt.Message.GetExtendedTextMessage().GetText()
	}
	return sender, content
}
