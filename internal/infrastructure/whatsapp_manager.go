package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
)

var ErrDeviceNotConnected = errors.New("whatsapp device not connected")

// DeviceManager owns one linked-device client per business and delivers
// replies on the whatsapp_device channel.
type DeviceManager struct {
	clients map[string]*DeviceClient
	mu      sync.RWMutex
	baseDir string
	limiter *KeyedRateLimiter
	log     zerolog.Logger

	// OnInbound receives text messages from every managed device.
	OnInbound func(entities.InboundMessage)
}

func NewDeviceManager(baseDir string, limiter *KeyedRateLimiter, log zerolog.Logger) *DeviceManager {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", baseDir).Msg("could not create devices directory")
	}
	return &DeviceManager{
		clients: make(map[string]*DeviceClient),
		baseDir: baseDir,
		limiter: limiter,
		log:     log,
	}
}

var _ interfaces.Messenger = (*DeviceManager)(nil)

func (m *DeviceManager) Get(businessID string) *DeviceClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[businessID]
}

func (m *DeviceManager) GetOrCreate(ctx context.Context, businessID string) (*DeviceClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, ok := m.clients[businessID]; ok {
		return client, nil
	}

	dbPath := filepath.Join(m.baseDir, fmt.Sprintf("business_%s.db", businessID))
	client, err := NewDeviceClient(ctx, dbPath, businessID, m.log)
	if err != nil {
		return nil, fmt.Errorf("create device for business %s: %w", businessID, err)
	}
	if m.OnInbound != nil {
		client.OnMessage(m.OnInbound)
	}
	m.clients[businessID] = client
	return client, nil
}

// Connect starts or resumes the business's session. Pairing continues in
// the background after ctx ends; poll QR and Status for progress.
func (m *DeviceManager) Connect(ctx context.Context, businessID string) (entities.DeviceStatus, error) {
	client, err := m.GetOrCreate(ctx, businessID)
	if err != nil {
		return entities.DeviceStatus{BusinessID: businessID}, err
	}
	if client.IsConnected() {
		return client.Status(), nil
	}
	if err := client.Connect(context.WithoutCancel(ctx)); err != nil {
		return client.Status(), fmt.Errorf("connect device for business %s: %w", businessID, err)
	}
	return client.Status(), nil
}

// QR returns the pending pairing code, or "" when none is available.
func (m *DeviceManager) QR(businessID string) string {
	client := m.Get(businessID)
	if client == nil {
		return ""
	}
	return client.GetQR()
}

// Status returns the device state; a business without a client is reported
// as disconnected.
func (m *DeviceManager) Status(businessID string) entities.DeviceStatus {
	client := m.Get(businessID)
	if client == nil {
		return entities.DeviceStatus{BusinessID: businessID}
	}
	return client.Status()
}

// Logout clears the stored session. Missing or already logged out devices
// are not an error.
func (m *DeviceManager) Logout(ctx context.Context, businessID string) error {
	m.mu.Lock()
	client, ok := m.clients[businessID]
	delete(m.clients, businessID)
	m.mu.Unlock()

	if !ok || client == nil {
		return nil
	}
	if !client.IsLoggedIn() {
		client.Disconnect()
		return nil
	}
	return client.Logout(ctx)
}

// Restore reconnects every device database left in the base directory.
func (m *DeviceManager) Restore(ctx context.Context) {
	matches, err := filepath.Glob(filepath.Join(m.baseDir, "business_*.db"))
	if err != nil {
		return
	}
	for _, path := range matches {
		businessID := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "business_"), ".db")
		if businessID == "" {
			continue
		}
		client, err := m.GetOrCreate(ctx, businessID)
		if err != nil {
			m.log.Warn().Err(err).Str("business_id", businessID).Msg("device restore failed")
			continue
		}
		if !client.IsLoggedIn() {
			continue
		}
		if err := client.Connect(ctx); err != nil {
			m.log.Warn().Err(err).Str("business_id", businessID).Msg("device reconnect failed")
		}
	}
}

func (m *DeviceManager) SendMessage(ctx context.Context, msg entities.OutboundMessage) (entities.DeliveryReceipt, error) {
	receipt := entities.DeliveryReceipt{Channel: entities.ChannelWhatsAppDevice}
	client := m.Get(msg.BusinessID)
	if client == nil || !client.IsConnected() {
		return receipt, ErrDeviceNotConnected
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx, msg.BusinessID); err != nil {
			return receipt, fmt.Errorf("send rate limit: %w", err)
		}
	}
	id, err := client.Send(ctx, msg.Recipient, msg.Text)
	if err != nil {
		return receipt, err
	}
	receipt.MessageID = id
	return receipt, nil
}

func (m *DeviceManager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, client := range m.clients {
		client.Disconnect()
	}
	m.clients = make(map[string]*DeviceClient)
}
