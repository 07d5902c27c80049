package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImpliedProbabilitiesRemovesVig(t *testing.T) {
	// 2.00 / 3.50 / 4.00 carries a 3.57% overround
	triple := ImpliedProbabilities(&OddsSnapshot{Home: 2.00, Draw: 3.50, Away: 4.00})
	require.NotNil(t, triple)

	assert.InDelta(t, 0.4828, triple.Home, 0.001)
	assert.InDelta(t, 0.2759, triple.Draw, 0.001)
	assert.InDelta(t, 0.2414, triple.Away, 0.001)
	assert.InDelta(t, 1.0, triple.Sum(), 1e-9)
}

func TestImpliedProbabilitiesFairOdds(t *testing.T) {
	triple := ImpliedProbabilities(&OddsSnapshot{Home: 2.0, Draw: 4.0, Away: 4.0})
	require.NotNil(t, triple)
	assert.InDelta(t, 0.5, triple.Home, 1e-9)
	assert.InDelta(t, 0.25, triple.Draw, 1e-9)
	assert.InDelta(t, 0.25, triple.Away, 1e-9)
}

func TestImpliedProbabilitiesDegenerateInputs(t *testing.T) {
	assert.Nil(t, ImpliedProbabilities(nil))
	assert.Nil(t, ImpliedProbabilities(&OddsSnapshot{Home: 0, Draw: 3.5, Away: 4.0}))
	assert.Nil(t, ImpliedProbabilities(&OddsSnapshot{Home: 2.0, Draw: -1, Away: 4.0}))
	assert.Nil(t, ImpliedProbabilities(&OddsSnapshot{}))
}
