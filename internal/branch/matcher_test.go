package branch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSet(t *testing.T) {
	assert.Equal(t, []string{"Saburtalo", "Didube"}, ParseSet("Saburtalo, Didube"))
	assert.Nil(t, ParseSet(""))
	assert.Nil(t, ParseSet("   "))
	assert.Equal(t, []string{"Batumi"}, ParseSet("Batumi,,"))
}

func TestHasWildcard(t *testing.T) {
	assert.True(t, HasWildcard([]string{"All"}))
	assert.True(t, HasWildcard([]string{"Saburtalo", "*"}))
	assert.True(t, HasWildcard([]string{"ALL"}))
	assert.False(t, HasWildcard([]string{"Saburtalo"}))
	assert.False(t, HasWildcard(nil))
}

func TestMatches_Exact(t *testing.T) {
	assert.True(t, Matches([]string{"Saburtalo"}, "Saburtalo"))
	assert.True(t, Matches([]string{"saburtalo"}, "SABURTALO"))
	assert.False(t, Matches([]string{"Saburtalo"}, "Batumi"))
}

func TestMatches_PrefixShortForm(t *testing.T) {
	// Configured short form matches a full branch name.
	assert.True(t, Matches([]string{"Didube"}, "Didube Branch Office"))
	// First word of the application branch matches a configured name.
	assert.True(t, Matches([]string{"Didube Branch Office"}, "Didube"))
	assert.False(t, Matches([]string{"Didube"}, "Batumi"))
}

func TestMatches_Wildcard(t *testing.T) {
	assert.True(t, Matches([]string{"All"}, "Anything At All"))
	assert.True(t, Matches([]string{"*"}, "Batumi"))
}

func TestMatches_EmptySet(t *testing.T) {
	assert.False(t, Matches(nil, "Saburtalo"))
	assert.False(t, Matches([]string{}, "Saburtalo"))
}
