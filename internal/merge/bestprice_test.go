package merge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

func TestComputeBestPrice(t *testing.T) {
	perSource := map[string]models.MarketOdds{
		"A": {"1x2": {"home": 1.85}},
		"B": {"1x2": {"home": 1.90}},
		"C": {"1x2": {"home": 1.88}},
	}

	best := ComputeBestPrice(perSource)
	require.Contains(t, best, "1x2")
	pp := best["1x2"]["home"]
	assert.Equal(t, 1.90, pp.Price)
	assert.Equal(t, "B", pp.SourceID)
}

func TestComputeBestPriceTieGoesToFirstSource(t *testing.T) {
	perSource := map[string]models.MarketOdds{
		"zenit":  {"1x2": {"draw": 3.40}},
		"fonbet": {"1x2": {"draw": 3.40}},
	}

	best := ComputeBestPrice(perSource)
	assert.Equal(t, "fonbet", best["1x2"]["draw"].SourceID)
}

func TestComputeBestPriceSkipsInvalidOdds(t *testing.T) {
	perSource := map[string]models.MarketOdds{
		"A": {"1x2": {"home": math.NaN(), "away": 0.5}},
		"B": {"1x2": {"home": 2.10}},
	}

	best := ComputeBestPrice(perSource)
	assert.Equal(t, 2.10, best["1x2"]["home"].Price)
	_, hasAway := best["1x2"]["away"]
	assert.False(t, hasAway)
}

func TestComputeBestPriceEmpty(t *testing.T) {
	assert.Empty(t, ComputeBestPrice(nil))
	assert.Empty(t, ComputeBestPrice(map[string]models.MarketOdds{"A": {}}))
}
