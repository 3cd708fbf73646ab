package automation

import (
	"testing"

	"github.com/harunnryd/koe/internal/intent"

	"github.com/stretchr/testify/assert"
)

func TestResponseText(t *testing.T) {
	ok := &Result{Success: true, Message: "Pausing current media playback."}

	assert.Equal(t, "", ResponseText(intent.TypeMusic, nil, nil))
	assert.Equal(t, "", ResponseText(intent.TypeMusic, &Result{Success: false, Message: "x"}, nil))

	assert.Equal(t, "🎛️ Pausing current media playback.", ResponseText(intent.TypeMediaControl, ok, nil))
	assert.Equal(t, "Done! Pausing current media playback.", ResponseText(intent.TypeMediaControl, ok, func(int) int { return 1 }))
	assert.Equal(t, "🎛️ Pausing current media playback.", ResponseText(intent.TypeMediaControl, ok, func(int) int { return 99 }))
	assert.Equal(t, "✅ Pausing current media playback.", ResponseText("teleport", ok, nil))

	automated := []intent.Type{
		intent.TypeMusic, intent.TypeShopping, intent.TypeSearch, intent.TypeTravel, intent.TypeGmail,
		intent.TypeWhatsApp, intent.TypePhone, intent.TypeMediaControl, intent.TypeSearchReplace,
	}
	for _, typ := range automated {
		assert.Len(t, responsePrefixes[typ], 4, typ)
	}
}
