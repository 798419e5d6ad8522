package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

// ConnectDevice starts pairing (or resumes the session) for the caller's
// business.
func (h *Handler) ConnectDevice(c *gin.Context) {
	if h.Devices == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "WhatsApp device not configured"})
		return
	}
	businessID := identityFrom(c).BusinessID
	status, err := h.Devices.Connect(c.Request.Context(), businessID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "connecting",
		"connected": status.Connected,
		"phone":     status.Phone,
		"name":      status.Name,
	})
}

// GetDeviceQR returns the pairing QR code as a PNG.
func (h *Handler) GetDeviceQR(c *gin.Context) {
	if h.Devices == nil {
		c.String(http.StatusServiceUnavailable, "WhatsApp device not configured")
		return
	}
	businessID := identityFrom(c).BusinessID

	code := h.Devices.QR(businessID)
	if code == "" {
		if h.Devices.Status(businessID).Connected {
			c.String(http.StatusOK, "Already logged in")
			return
		}
		c.String(http.StatusAccepted, "QR code not yet available. Please wait...")
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		h.log.Error().Err(err).Msg("qr encode failed")
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) GetDeviceStatus(c *gin.Context) {
	if h.Devices == nil {
		c.JSON(http.StatusOK, gin.H{"connected": false, "error": "WhatsApp device not configured"})
		return
	}
	c.JSON(http.StatusOK, h.Devices.Status(identityFrom(c).BusinessID))
}

// LogoutDevice always reports success; a failed remote logout only matters
// to the logs.
func (h *Handler) LogoutDevice(c *gin.Context) {
	if h.Devices == nil {
		c.JSON(http.StatusOK, gin.H{"status": "logged_out", "message": "WhatsApp device not configured"})
		return
	}
	businessID := identityFrom(c).BusinessID
	if err := h.Devices.Logout(c.Request.Context(), businessID); err != nil {
		h.log.Warn().Err(err).Str("business_id", businessID).Msg("device logout")
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}
