package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardizeBrand(t *testing.T) {
	assert.Equal(t, "Sony", StandardizeBrand("PlayStation"))
	assert.Equal(t, "Sony", StandardizeBrand("sony interactive"))
	assert.Equal(t, "Microsoft", StandardizeBrand("XBOX"))
	assert.Equal(t, "Nintendo", StandardizeBrand("nintendo switch"))
	assert.Equal(t, "Nike Air", StandardizeBrand("nike AIR"))
	assert.Equal(t, "Ps5Pro", StandardizeBrand("ps5pro"))
	assert.Equal(t, "", StandardizeBrand("  "))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "pl", DetectLanguage("Gra FIFA 23 nowa w folii"))
	assert.Equal(t, "sk", DetectLanguage("Konzola PS4 použitá"))
	assert.Equal(t, "cs", DetectLanguage("Ovladač v perfektní stavu"))
	assert.Equal(t, "", DetectLanguage("PS5 controller"))
	assert.Equal(t, "", DetectLanguage(""))
}
