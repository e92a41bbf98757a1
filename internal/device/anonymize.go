package device

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// AnonymizeID derives an origin-scoped id: base64(HMAC-SHA256(key, id)).
func AnonymizeID(id, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(id))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// AnonymizeDevices returns copies of devices with ID and GroupID replaced by
// origin-scoped ids. An empty key leaves the ids raw.
func AnonymizeDevices(devices []*Device, key string) []*Device {
	out := make([]*Device, 0, len(devices))
	for _, d := range devices {
		cp := *d
		if key != "" {
			cp.ID = AnonymizeID(d.RawID, key)
			if d.RawGroupID != "" {
				cp.GroupID = AnonymizeID(d.RawGroupID, key)
			}
		}
		out = append(out, &cp)
	}
	return out
}

// FindByID returns the device whose ID or RawID equals id.
func FindByID(devices []*Device, id string) *Device {
	for _, d := range devices {
		if d.ID == id || d.RawID == id {
			return d
		}
	}
	return nil
}
