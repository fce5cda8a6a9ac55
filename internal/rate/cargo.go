package rate

import (
	"encoding/json"
	"strings"
)

type CargoType string

const (
	CargoGeneral   CargoType = "general"
	CargoBattery   CargoType = "battery"
	CargoLiquid    CargoType = "liquid"
	CargoSensitive CargoType = "sensitive"
)

var cargoAliases = map[string]CargoType{
	"general":   CargoGeneral,
	"普货":        CargoGeneral,
	"battery":   CargoBattery,
	"带电":        CargoBattery,
	"liquid":    CargoLiquid,
	"液体":        CargoLiquid,
	"sensitive": CargoSensitive,
	"敏感货":       CargoSensitive,
}

// ParseCargoType accepts the English codes and the Chinese labels used by the
// quote form. Unknown values are returned unchanged so validation can reject them.
func ParseCargoType(s string) CargoType {
	s = strings.TrimSpace(s)
	if c, ok := cargoAliases[strings.ToLower(s)]; ok {
		return c
	}
	return CargoType(s)
}

func (c *CargoType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*c = ParseCargoType(s)
	return nil
}

func (c CargoType) Valid() bool {
	switch c {
	case CargoGeneral, CargoBattery, CargoLiquid, CargoSensitive:
		return true
	}
	return false
}

// Label is the Chinese name used in staff-facing messages.
func (c CargoType) Label() string {
	switch c {
	case CargoGeneral:
		return "普货"
	case CargoBattery:
		return "带电"
	case CargoLiquid:
		return "液体"
	case CargoSensitive:
		return "敏感货"
	}
	return string(c)
}

var batteryKeywords = []string{"带电", "特货"}

const generalKeyword = "普货"

func isBatteryChannel(channel string) bool {
	for _, kw := range batteryKeywords {
		if strings.Contains(channel, kw) {
			return true
		}
	}
	return false
}

// ChannelAccepts is a best-effort classifier over the channel name, not a
// capability table. Battery cargo needs a "带电"/"特货" channel; general cargo
// takes "普货" channels and any channel without a battery keyword. Other cargo
// types, and an empty cargo type, pass every channel.
func ChannelAccepts(channel string, cargo CargoType) bool {
	switch cargo {
	case CargoBattery:
		return isBatteryChannel(channel)
	case CargoGeneral:
		return strings.Contains(channel, generalKeyword) || !isBatteryChannel(channel)
	default:
		return true
	}
}

// ChannelRestrictions lists the cargo types the heuristic assigns to a channel.
func ChannelRestrictions(channel string) []CargoType {
	out := make([]CargoType, 0, 2)
	if ChannelAccepts(channel, CargoGeneral) {
		out = append(out, CargoGeneral)
	}
	if ChannelAccepts(channel, CargoBattery) {
		out = append(out, CargoBattery)
	}
	return out
}
