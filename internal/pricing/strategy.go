package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Input is the slice of cell state the strategies price against.
type Input struct {
	Date        time.Time
	Today       time.Time
	TotalCount  int
	BookedCount int
	SurgeFactor decimal.Decimal
}

// Strategy adjusts a running price. Strategies are pure and run in order.
type Strategy func(price decimal.Decimal, in Input) decimal.Decimal

var (
	highOccupancyRatio   = decimal.RequireFromString("0.8")
	mediumOccupancyRatio = decimal.RequireFromString("0.5")
	highOccupancyRate    = decimal.RequireFromString("1.40")
	mediumOccupancyRate  = decimal.RequireFromString("1.10")
	earlyBirdRate        = decimal.RequireFromString("0.90")
	lastMinuteRate       = decimal.RequireFromString("1.15")
	shortNoticeRate      = decimal.RequireFromString("1.05")
	weekendRate          = decimal.RequireFromString("1.15")
)

// Chain is the ordered list of strategies applied on top of a base price.
type Chain []Strategy

// DefaultChain returns surge, occupancy, urgency and weekend in that order.
func DefaultChain() Chain {
	return Chain{Surge, Occupancy, Urgency, Weekend}
}

// Price runs base through every strategy in order.
func (c Chain) Price(base decimal.Decimal, in Input) decimal.Decimal {
	price := base
	for _, strategy := range c {
		price = strategy(price, in)
	}
	return price
}

func scale(price, rate decimal.Decimal) decimal.Decimal {
	return price.Mul(rate).Round(2)
}

// Surge applies the cell's manual surge factor.
func Surge(price decimal.Decimal, in Input) decimal.Decimal {
	if in.SurgeFactor.IsZero() {
		return price
	}
	return scale(price, in.SurgeFactor)
}

// Occupancy raises the price as the booked share of the room grows.
func Occupancy(price decimal.Decimal, in Input) decimal.Decimal {
	if in.TotalCount <= 0 {
		return price
	}
	ratio := decimal.NewFromInt(int64(in.BookedCount)).Div(decimal.NewFromInt(int64(in.TotalCount)))
	switch {
	case ratio.GreaterThan(highOccupancyRatio):
		return scale(price, highOccupancyRate)
	case ratio.GreaterThan(mediumOccupancyRatio):
		return scale(price, mediumOccupancyRate)
	default:
		return price
	}
}

// Urgency discounts far-out dates and charges more close to the stay.
func Urgency(price decimal.Decimal, in Input) decimal.Decimal {
	days := int(in.Date.Sub(in.Today).Hours() / 24)
	switch {
	case days >= 30:
		return scale(price, earlyBirdRate)
	case days >= 0 && days <= 7:
		return scale(price, lastMinuteRate)
	case days >= 8 && days <= 15:
		return scale(price, shortNoticeRate)
	default:
		return price
	}
}

// Weekend marks up Friday, Saturday and Sunday nights.
func Weekend(price decimal.Decimal, in Input) decimal.Decimal {
	switch in.Date.Weekday() {
	case time.Friday, time.Saturday, time.Sunday:
		return scale(price, weekendRate)
	default:
		return price
	}
}
