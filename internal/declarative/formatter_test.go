package declarative

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatText_NoColor(t *testing.T) {
	var buf bytes.Buffer
	FormatText(&buf, loadPipeline(t, "big_spenders.yaml"), true)

	want := `# pipeline big-spenders
Cost per click of devices that spent more than 1000.
  1. cube keys=[device, day] aggs=[sum(cost), sum(clicks)]
  2. represent regions=[{device}]
  3. slice_transform transformations=[ratio(by_day->cpc)]
  4. slice_select where features["self"].sum("cost") > 1000
  5. flatten dimensions=[device, day]
`
	assert.Equal(t, want, buf.String())
	assert.NotContains(t, buf.String(), "\033[")
}

func TestFormatText_Crawl(t *testing.T) {
	var buf bytes.Buffer
	FormatText(&buf, loadPipeline(t, "daily_crawl.yml"), true)
	assert.Contains(t, buf.String(),
		"2. crawl regions=[{day}] transformations=[share(by_device->by_device), starlark(self->doubled)] where <script>")
}

func TestFormatText_Problems(t *testing.T) {
	doc := validDoc()
	doc.Spec.Stages[3] = StageSpec{}

	var buf bytes.Buffer
	FormatText(&buf, doc, false)
	out := buf.String()
	assert.Contains(t, out, colorRed+"1 problem(s):"+colorReset)
	assert.Contains(t, out, "4. "+colorGreen+"invalid"+colorReset)
	assert.Contains(t, out, "spec.stages[3]: stage has no operator")
}

func TestFormat_RoundTrip(t *testing.T) {
	doc := loadPipeline(t, "daily_crawl.yml")
	out, err := Format(doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "apiVersion: mra/v1\nkind: Pipeline\n"), string(out))
	assert.NotContains(t, string(out), "path:")

	again, err := LoadBytes(out, LoadOptions{})
	require.NoError(t, err)
	again.Path = doc.Path
	assert.Equal(t, doc, again)
}

func TestColorEnabled(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, ColorEnabled(&buf))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	assert.False(t, ColorEnabled(f))
}

func TestFormat_KeepsEmptyDrillDown(t *testing.T) {
	input := `apiVersion: mra/v1
kind: Pipeline
metadata: {name: drill}
spec:
  dimensions: [device, day]
  stages:
    - represent:
        regions: [[device]]
    - transform:
        transformations: [{type: share, source: self, column: cost, mode: mutate}]
        drillDown: []
    - flatten: {}
    - crawl:
        regions: [[day]]
`
	doc, err := LoadBytes([]byte(input), LoadOptions{})
	require.NoError(t, err)
	require.NotNil(t, doc.Spec.Stages[1].Transform.DrillDown)

	out, err := Format(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), "drillDown: []")
	assert.Equal(t, 1, strings.Count(string(out), "drillDown"), string(out))

	again, err := LoadBytes(out, LoadOptions{})
	require.NoError(t, err)
	dd := again.Spec.Stages[1].Transform.DrillDown
	assert.NotNil(t, dd, "empty drillDown must survive formatting")
	assert.Empty(t, dd)
	assert.Nil(t, again.Spec.Stages[3].Crawl.DrillDown)
}
