package application

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	batch "abstraction-billing/internal/batch/domain"
	charge "abstraction-billing/internal/charge/domain"
	transaction "abstraction-billing/internal/transaction/domain"
)

// IDFactory mints transaction identifiers. Tests swap in a deterministic
// sequence so generated sets can be compared.
type IDFactory interface {
	NewID() string
}

// UUIDFactory mints random UUIDs.
type UUIDFactory struct{}

// NewID returns a new UUID string.
func (UUIDFactory) NewID() string { return uuid.NewString() }

// Generator builds candidate transactions for one charge version and
// financial year. It is pure apart from id generation: re-running with
// unchanged inputs yields an identical set up to identifiers.
type Generator struct {
	ids IDFactory
}

// NewGenerator constructs a generator.
func NewGenerator(ids IDFactory) (*Generator, error) {
	if ids == nil {
		ids = UUIDFactory{}
	}
	return &Generator{ids: ids}, nil
}

// VolumeForElement resolves the billable volume for a two-part tariff
// transaction; the default uses the authorised annual quantity pro-rated.
type VolumeForElement func(element charge.ChargeElement) (decimal.Decimal, bool)

// GenerateForYear emits the transactions a charge version contributes to a
// batch for one financial year.
func (g *Generator) GenerateForYear(b *batch.Batch, year charge.FinancialYear, version charge.ChargeVersion, tptVolume VolumeForElement) ([]transaction.Transaction, error) {
	if b == nil {
		return nil, errors.New("transaction generator: nil batch")
	}
	chargePeriod, ok := charge.ChargePeriod(year, version)
	if !ok {
		return nil, nil
	}

	var result []transaction.Transaction
	for _, element := range version.Elements {
		elementPeriod, ok := charge.ElementPeriod(chargePeriod, element)
		if !ok {
			continue
		}
		generated, err := g.generateForElement(b, year, version, element, elementPeriod, tptVolume)
		if err != nil {
			return nil, err
		}
		result = append(result, generated...)
	}
	return result, nil
}

func (g *Generator) generateForElement(
	b *batch.Batch,
	year charge.FinancialYear,
	version charge.ChargeVersion,
	element charge.ChargeElement,
	elementPeriod charge.DateRange,
	tptVolume VolumeForElement,
) ([]transaction.Transaction, error) {
	authorisedDays, err := charge.AuthorisedDays(year, element)
	if err != nil {
		return nil, err
	}

	var result []transaction.Transaction
	for _, sub := range transaction.AgreementHistory(elementPeriod, version.Licence.Agreements) {
		billableDays, err := charge.BillableDays(sub.Range, element)
		if err != nil {
			return nil, err
		}
		if billableDays == 0 {
			continue
		}

		base := transaction.Transaction{
			BatchID:         b.ID,
			ChargeElementID: element.ID,
			ChargePeriod:    sub.Range,
			AuthorisedDays:  authorisedDays,
			BillableDays:    billableDays,
			Volume:          element.MaxAnnualQuantity(),
			Season:          element.Season,
			Loss:            element.Loss,
			Source:          element.Source,
			Status:          transaction.StatusCandidate,
			Agreements:      sub.Codes(),
		}

		standardBatch := b.Type == batch.TypeAnnual || b.Type == batch.TypeSupplementary
		if standardBatch {
			standard := base
			standard.ID = g.ids.NewID()
			standard.Description = describeStandard(element)
			result = append(result, standard)

			if !version.Licence.IsWaterUndertaker {
				compensation := base
				compensation.ID = g.ids.NewID()
				compensation.IsCompensationCharge = true
				compensation.Description = "Compensation Charge calculated from all factors except Standard Unit Charge and Source (replaced by factors below) and excluding S127 Charge Element"
				result = append(result, compensation)
			}
		}

		tptBatch := b.Type == batch.TypeTwoPartTariff || b.Type == batch.TypeSupplementary
		if tptBatch && sub.HasTwoPartTariff() && element.Purpose.IsTwoPartTariff {
			tpt := base
			tpt.ID = g.ids.NewID()
			tpt.IsTwoPartTariffSupplementary = true
			tpt.Description = "Second Part Spray Irrigation Charge"
			if element.Purpose.Description != "" {
				tpt.Description = "Second Part " + element.Purpose.Description + " Charge"
			}
			if tptVolume != nil {
				if volume, ok := tptVolume(element); ok {
					tpt.Volume = volume
				}
			}
			result = append(result, tpt)
		}
	}
	return result, nil
}

func describeStandard(element charge.ChargeElement) string {
	if element.Description != "" {
		return element.Description
	}
	return fmt.Sprintf("Abstraction charge, %s loss, %s", element.Loss, element.Season)
}
