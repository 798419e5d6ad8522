package entities

// DeviceStatus describes a business's linked WhatsApp device.
type DeviceStatus struct {
	BusinessID string `json:"business_id"`
	Connected  bool   `json:"connected"`
	Pairing    bool   `json:"pairing"`
	Phone      string `json:"phone,omitempty"`
	Name       string `json:"name,omitempty"`
}
