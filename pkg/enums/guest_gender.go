package enums

import "slices"

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

var validGenders = []Gender{GenderMale, GenderFemale, GenderOther}

func (g Gender) IsValid() bool {
	return slices.Contains(validGenders, g)
}

func ParseGender(value string) (Gender, error) {
	return parse("gender", validGenders, value)
}
