package domain

// BusinessType classifies what a merchant sells.
type BusinessType string

const (
	BusinessTypeRetail       BusinessType = "retail"
	BusinessTypeServices     BusinessType = "services"
	BusinessTypeFood         BusinessType = "food"
	BusinessTypeFashion      BusinessType = "fashion"
	BusinessTypeElectronics  BusinessType = "electronics"
	BusinessTypeHealthBeauty BusinessType = "health_beauty"
	BusinessTypeEducation    BusinessType = "education"
	BusinessTypeOther        BusinessType = "other"
)

// ValidBusinessTypes returns the recognized business types.
func ValidBusinessTypes() []BusinessType {
	return []BusinessType{
		BusinessTypeRetail,
		BusinessTypeServices,
		BusinessTypeFood,
		BusinessTypeFashion,
		BusinessTypeElectronics,
		BusinessTypeHealthBeauty,
		BusinessTypeEducation,
		BusinessTypeOther,
	}
}

// IsValid reports whether t is one of ValidBusinessTypes.
func (t BusinessType) IsValid() bool {
	for _, v := range ValidBusinessTypes() {
		if v == t {
			return true
		}
	}
	return false
}
