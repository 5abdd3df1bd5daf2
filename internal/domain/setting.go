package domain

import (
	"fmt"
	"math"
	"slices"
)

// SettingType discriminates Setting variants.
type SettingType string

const (
	SettingText    SettingType = "text"
	SettingBoolean SettingType = "boolean"
	SettingNumber  SettingType = "number"
	SettingEnum    SettingType = "enum"
	SettingLLM     SettingType = "llm"
)

// TextVariant controls how a text setting is edited.
type TextVariant string

const (
	TextVariantText      TextVariant = "text"
	TextVariantPassword  TextVariant = "password"
	TextVariantMultiline TextVariant = "multiline"
)

// Setting is a user-editable value a plugin declares.
type Setting interface {
	Base() SettingBase
	Type() SettingType
	// DefaultValue returns the declared default, if any.
	DefaultValue() (any, bool)
	// Normalize checks v against the variant and converts it to the canonical
	// Go type (string, bool or float64).
	Normalize(v any) (any, error)
	setting()
}

// SettingBase is shared by every setting variant.
type SettingBase struct {
	ID          string
	Name        string
	Description string
}

func (b SettingBase) Base() SettingBase { return b }

type TextSetting struct {
	SettingBase
	Variant TextVariant
	Default *string
}

type BooleanSetting struct {
	SettingBase
	Default *bool
}

// NumberSetting bounds are inclusive. StepSize is an editor hint; zero means 1.
type NumberSetting struct {
	SettingBase
	Default  *float64
	Min      *float64
	Max      *float64
	StepSize float64
}

type EnumOption struct {
	Value string
	Label string
}

type EnumSetting struct {
	SettingBase
	Options []EnumOption
	Default *string
}

// LLMSetting selects a registered LLM that has every listed capability.
type LLMSetting struct {
	SettingBase
	Capabilities []Capability
	Default      *string
}

func (TextSetting) Type() SettingType    { return SettingText }
func (BooleanSetting) Type() SettingType { return SettingBoolean }
func (NumberSetting) Type() SettingType  { return SettingNumber }
func (EnumSetting) Type() SettingType    { return SettingEnum }
func (LLMSetting) Type() SettingType     { return SettingLLM }

func (TextSetting) setting()    {}
func (BooleanSetting) setting() {}
func (NumberSetting) setting()  {}
func (EnumSetting) setting()    {}
func (LLMSetting) setting()     {}

func (s TextSetting) DefaultValue() (any, bool)    { return deref(s.Default) }
func (s BooleanSetting) DefaultValue() (any, bool) { return deref(s.Default) }
func (s NumberSetting) DefaultValue() (any, bool)  { return deref(s.Default) }
func (s EnumSetting) DefaultValue() (any, bool)    { return deref(s.Default) }
func (s LLMSetting) DefaultValue() (any, bool)     { return deref(s.Default) }

// Step returns StepSize, defaulting to 1.
func (s NumberSetting) Step() float64 {
	if s.StepSize <= 0 {
		return 1
	}
	return s.StepSize
}

func (s TextSetting) Normalize(v any) (any, error) {
	str, ok := v.(string)
	if !ok {
		return nil, settingTypeError(s.ID, "string", v)
	}
	return str, nil
}

func (s BooleanSetting) Normalize(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, settingTypeError(s.ID, "boolean", v)
	}
	return b, nil
}

func (s NumberSetting) Normalize(v any) (any, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return nil, settingTypeError(s.ID, "number", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, NewSubSystemError("settings", "Setting.Normalize", ErrInvalidInput, s.ID+": not a finite number")
	}
	if s.Min != nil && f < *s.Min {
		return nil, NewSubSystemError("settings", "Setting.Normalize", ErrInvalidInput,
			fmt.Sprintf("%s: %v is below minimum %v", s.ID, f, *s.Min))
	}
	if s.Max != nil && f > *s.Max {
		return nil, NewSubSystemError("settings", "Setting.Normalize", ErrInvalidInput,
			fmt.Sprintf("%s: %v is above maximum %v", s.ID, f, *s.Max))
	}
	return f, nil
}

func (s EnumSetting) Normalize(v any) (any, error) {
	str, ok := v.(string)
	if !ok {
		return nil, settingTypeError(s.ID, "string", v)
	}
	if !slices.ContainsFunc(s.Options, func(o EnumOption) bool { return o.Value == str }) {
		return nil, NewSubSystemError("settings", "Setting.Normalize", ErrInvalidInput,
			fmt.Sprintf("%s: %q is not an option", s.ID, str))
	}
	return str, nil
}

// Normalize only checks the type; capability checks need the models registry.
func (s LLMSetting) Normalize(v any) (any, error) {
	str, ok := v.(string)
	if !ok || str == "" {
		return nil, settingTypeError(s.ID, "llm id", v)
	}
	return str, nil
}

// ValidateSetting checks a setting declaration.
func ValidateSetting(s Setting) error {
	if s == nil {
		return NewSubSystemError("settings", "Settings.Register", ErrInvalidInput, "nil setting")
	}
	if s.Base().ID == "" {
		return NewSubSystemError("settings", "Settings.Register", ErrInvalidInput, "setting id is required")
	}
	switch v := s.(type) {
	case NumberSetting:
		if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
			return NewSubSystemError("settings", "Settings.Register", ErrInvalidInput, v.ID+": min exceeds max")
		}
	case EnumSetting:
		if len(v.Options) == 0 {
			return NewSubSystemError("settings", "Settings.Register", ErrInvalidInput, v.ID+": enum without options")
		}
	case TextSetting:
		switch v.Variant {
		case "", TextVariantText, TextVariantPassword, TextVariantMultiline:
		default:
			return NewSubSystemError("settings", "Settings.Register", ErrInvalidInput, v.ID+": unknown text variant "+string(v.Variant))
		}
	}
	if def, ok := s.DefaultValue(); ok {
		if _, err := s.Normalize(def); err != nil {
			return fmt.Errorf("default value: %w", err)
		}
	}
	return nil
}

func settingTypeError(id, want string, got any) error {
	return NewSubSystemError("settings", "Setting.Normalize", ErrInvalidInput,
		fmt.Sprintf("%s: want %s, got %T", id, want, got))
}

func deref[T any](p *T) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}
