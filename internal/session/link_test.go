package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPendingLink_ConsumedAtMostOnce(t *testing.T) {
	var p PendingLink
	p.Deposit("https://x")

	link, ok := p.ConsumeIfPresent()
	assert.True(t, ok)
	assert.Equal(t, "https://x", link)

	link, ok = p.ConsumeIfPresent()
	assert.False(t, ok)
	assert.Empty(t, link)
}

func TestPendingLink_Overwrite(t *testing.T) {
	var p PendingLink
	assert.False(t, p.Deposit("https://first"))
	assert.True(t, p.Deposit("https://second"))

	link, ok := p.ConsumeIfPresent()
	assert.True(t, ok)
	assert.Equal(t, "https://second", link)

	_, ok = p.ConsumeIfPresent()
	assert.False(t, ok)
}

func TestPendingLink_EmptyByDefault(t *testing.T) {
	var p PendingLink
	_, ok := p.ConsumeIfPresent()
	assert.False(t, ok)
}
