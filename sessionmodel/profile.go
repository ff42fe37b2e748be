package sessionmodel

import (
	"bytes"
	"encoding/json"
)

// Profile is the last known identity payload returned by the API.
// Raw keeps the full payload so fields the client does not model survive a
// round trip through the durable store.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Image string `json:"profileImage,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// IsZero reports whether the profile is empty.
func (p Profile) IsZero() bool {
	return p.ID == "" && p.Email == "" && p.Name == "" && len(p.Raw) == 0
}

// UnmarshalJSON decodes the modelled fields and keeps a copy of the payload.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type plain Profile
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*p = Profile(decoded)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		p.Raw = append(json.RawMessage(nil), trimmed...)
	}
	return nil
}

// MarshalJSON writes the original payload when there is one.
func (p Profile) MarshalJSON() ([]byte, error) {
	if len(p.Raw) > 0 {
		return p.Raw, nil
	}
	type plain Profile
	return json.Marshal(plain(p))
}

// DecodeProfile parses a stored or received profile payload.
func DecodeProfile(data string) (Profile, error) {
	var p Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// EncodeProfile serialises a profile for the durable store.
func EncodeProfile(p Profile) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
