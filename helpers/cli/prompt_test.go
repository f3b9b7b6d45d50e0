package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunLines(t *testing.T) {
	t.Parallel()
	var got []string
	RunLines(strings.NewReader("scan\n\n  select 0 \nstatus"), func(line string) {
		got = append(got, line)
	})
	assert.Equal(t, []string{"scan", "select 0", "status"}, got)
}
