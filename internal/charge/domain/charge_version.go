package charge

// ChargeVersion is a licence's charge configuration valid over a date range.
// Elements are kept in the order they were authorised.
type ChargeVersion struct {
	ID                   string
	LicenceID            string
	Licence              Licence
	Range                DateRange
	Status               string
	InvoiceAccountID     string
	InvoiceAccountNumber string
	Elements             []ChargeElement
}

// TwoPartTariffElements returns the elements eligible for two-part tariff.
func (v ChargeVersion) TwoPartTariffElements() []ChargeElement {
	var eligible []ChargeElement
	for _, element := range v.Elements {
		if element.Purpose.IsTwoPartTariff {
			eligible = append(eligible, element)
		}
	}
	return eligible
}
