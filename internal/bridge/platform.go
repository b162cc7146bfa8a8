// Package bridge defines the canonical message model shared by every
// platform adapter: platform tags, message segments, bridge users and the
// persisted correlation records.
package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Platform identifies one chat platform. Values are distinct powers of two
// so tags can be combined into bitsets.
type Platform uint64

const (
	PlatformDiscord  Platform = 1 << 0
	PlatformQQ       Platform = 1 << 1
	PlatformCmd      Platform = 1 << 2
	PlatformTelegram Platform = 1 << 3
)

// Code returns the stable string key used in persisted records.
func (p Platform) Code() string {
	switch p {
	case PlatformDiscord:
		return "DC"
	case PlatformQQ:
		return "QQ"
	case PlatformCmd:
		return "CMD"
	case PlatformTelegram:
		return "TG"
	}
	return fmt.Sprintf("Platform(%d)", uint64(p))
}

func (p Platform) String() string { return p.Code() }

// ParsePlatform resolves a platform code. Matching is case-insensitive.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DC":
		return PlatformDiscord, nil
	case "QQ":
		return PlatformQQ, nil
	case "CMD":
		return PlatformCmd, nil
	case "TG":
		return PlatformTelegram, nil
	}
	return 0, fmt.Errorf("unknown platform %q", s)
}

// MarshalJSON encodes the platform as its string code so persisted records
// stay readable and stable across versions.
func (p Platform) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Code())
}

func (p *Platform) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePlatform(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
