package patient

import (
	"math"

	"github.com/ehr/hms/internal/platform/validate"
)

// Gender values accepted on create.
const (
	GenderMale   = "Male"
	GenderFemale = "Female"
	GenderOther  = "Other"
)

// BMI classification bands.
const (
	VerdictUnderweight = "underweight"
	VerdictNormal      = "normal"
	VerdictOverweight  = "overweight"
	VerdictObese       = "obese"
)

type Address struct {
	AddressLine1 string `json:"address_line1" validate:"required"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city" validate:"required,max=100"`
	Country      string `json:"country" validate:"required,max=100"`
	Zipcode      string `json:"zipcode" validate:"required,max=5"`
}

// Patient is the inbound create payload. It only lives for the duration of a
// request; what gets persisted is the Record returned by ToRecord.
type Patient struct {
	ID      string  `json:"id" validate:"required"`
	Name    string  `json:"name" validate:"required"`
	Gender  string  `json:"gender" validate:"required,oneof=Male Female Other"`
	Age     int     `json:"age" validate:"gt=0,lte=120"`
	Height  float64 `json:"height" validate:"gt=0"`
	Weight  float64 `json:"weight" validate:"gt=0"`
	Email   string  `json:"email" validate:"required,email"`
	Address Address `json:"address"`
}

// Record is a patient as stored: every Patient field except the id, which is
// the store key, plus the derived bmi and verdict.
type Record struct {
	Name    string  `json:"name"`
	Gender  string  `json:"gender"`
	Age     int     `json:"age"`
	Height  float64 `json:"height"`
	Weight  float64 `json:"weight"`
	Email   string  `json:"email"`
	Address Address `json:"address"`
	BMI     float64 `json:"bmi"`
	Verdict string  `json:"verdict"`
}

// Validate checks field types and ranges. A failure is a *validate.Error.
func (p *Patient) Validate() error {
	return validate.Struct(p)
}

// BMI returns weight / height², rounded to two decimal places.
func (p *Patient) BMI() float64 {
	return ComputeBMI(p.Height, p.Weight)
}

func (p *Patient) Verdict() string {
	return ClassifyBMI(p.BMI())
}

func (p *Patient) ToRecord() Record {
	bmi := p.BMI()
	return Record{
		Name:    p.Name,
		Gender:  p.Gender,
		Age:     p.Age,
		Height:  p.Height,
		Weight:  p.Weight,
		Email:   p.Email,
		Address: p.Address,
		BMI:     bmi,
		Verdict: ClassifyBMI(bmi),
	}
}

func ComputeBMI(height, weight float64) float64 {
	return math.Round(weight/(height*height)*100) / 100
}

// ClassifyBMI maps a bmi onto a verdict. Bands are half-open so every value
// falls in exactly one of them.
func ClassifyBMI(bmi float64) string {
	switch {
	case bmi < 18.5:
		return VerdictUnderweight
	case bmi < 25.0:
		return VerdictNormal
	case bmi < 30.0:
		return VerdictOverweight
	default:
		return VerdictObese
	}
}
