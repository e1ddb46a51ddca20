package models

import (
	"fmt"
	"strings"
)

// AgeGroup - возрастная группа ребенка.
type AgeGroup string

const (
	AgeGroup4to6   AgeGroup = "4-6"
	AgeGroup7to9   AgeGroup = "7-9"
	AgeGroup10to12 AgeGroup = "10-12"
)

// AgeGroups возвращает все допустимые возрастные группы.
func AgeGroups() []AgeGroup {
	return []AgeGroup{AgeGroup4to6, AgeGroup7to9, AgeGroup10to12}
}

// Valid сообщает, входит ли группа в фиксированный набор.
func (a AgeGroup) Valid() bool {
	switch a {
	case AgeGroup4to6, AgeGroup7to9, AgeGroup10to12:
		return true
	}
	return false
}

// Duration - класс длительности истории в минутах.
type Duration int

const (
	DurationShort  Duration = 2
	DurationMedium Duration = 5
	DurationLong   Duration = 10
)

// Valid сообщает, является ли длительность одной из трех допустимых.
func (d Duration) Valid() bool {
	return d == DurationShort || d == DurationMedium || d == DurationLong
}

// MoralFocus - мораль, на которой строится история.
type MoralFocus string

const (
	MoralKindness   MoralFocus = "kindness"
	MoralCourage    MoralFocus = "courage"
	MoralHonesty    MoralFocus = "honesty"
	MoralSharing    MoralFocus = "sharing"
	MoralPatience   MoralFocus = "patience"
	MoralFriendship MoralFocus = "friendship"
	MoralCuriosity  MoralFocus = "curiosity"
)

// Valid сообщает, известна ли мораль.
func (m MoralFocus) Valid() bool {
	switch m {
	case MoralKindness, MoralCourage, MoralHonesty, MoralSharing, MoralPatience, MoralFriendship, MoralCuriosity:
		return true
	}
	return false
}

const (
	MaxInterests     = 5
	MaxContextLength = 500
)

// Child описывает ребенка, для которого генерируется история.
// Неизменяем после старта сессии.
type Child struct {
	Name      string   `json:"name" validate:"required,max=64"`
	Gender    string   `json:"gender" validate:"required,oneof=female male other"`
	AgeGroup  AgeGroup `json:"age_group" validate:"required,oneof=4-6 7-9 10-12"`
	Interests []string `json:"interests" validate:"required,min=1,max=5,dive,required,max=64"`
	Context   string   `json:"context,omitempty" validate:"omitempty,max=500"`
}

// Normalize обрезает пробелы в текстовых полях и выбрасывает пустые интересы.
func (c Child) Normalize() Child {
	out := Child{
		Name:     strings.TrimSpace(c.Name),
		Gender:   strings.ToLower(strings.TrimSpace(c.Gender)),
		AgeGroup: AgeGroup(strings.TrimSpace(string(c.AgeGroup))),
		Context:  strings.TrimSpace(c.Context),
	}
	for _, interest := range c.Interests {
		if s := strings.TrimSpace(interest); s != "" {
			out.Interests = append(out.Interests, s)
		}
	}
	return out
}

// Check выполняет минимальную проверку, нужную при загрузке сессии из хранилища.
func (c Child) Check() error {
	if c.Name == "" {
		return fmt.Errorf("%w: child name is empty", ErrInvalidInput)
	}
	if !c.AgeGroup.Valid() {
		return fmt.Errorf("%w: unknown age group %q", ErrInvalidInput, c.AgeGroup)
	}
	if len(c.Interests) == 0 || len(c.Interests) > MaxInterests {
		return fmt.Errorf("%w: child must have 1-%d interests, got %d", ErrInvalidInput, MaxInterests, len(c.Interests))
	}
	return nil
}
