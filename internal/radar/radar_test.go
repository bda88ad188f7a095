package radar

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignalJSONCarriesTypedDetails(t *testing.T) {
	t.Parallel()

	sig := Signal{
		SignalID: "cross_platform|abc", Type: SignalCrossPlatform, Layer: LayerCross, Title: "A B C",
		Platforms: []string{"bili", "wb"}, SourceCollection: SourceCollectionCross,
		CrossPlatform: &CrossPlatformDetails{
			PlatformCount:  2,
			PlatformItems:  map[string]PlatformItem{"wb": {Title: "A B C", Position: IntPtr(1)}},
			CommonKeywords: []string{"a", "b"},
		},
	}
	raw, err := json.Marshal(sig)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	require.Equal(t, "cross_platform", wire["signal_type"])
	details, ok := wire["details"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 2, details["platform_count"])

	var back Signal
	require.NoError(t, json.Unmarshal(raw, &back))
	require.NotNil(t, back.CrossPlatform)
	require.Nil(t, back.Velocity)
	require.Equal(t, 1, *back.CrossPlatform.PlatformItems["wb"].Position)
	require.Same(t, back.CrossPlatform, back.Details())
}

func TestSignalWithoutDetails(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Signal{SignalID: "x", Type: SignalVelocity})
	require.NoError(t, err)
	require.NotContains(t, string(raw), "details")

	var back Signal
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Nil(t, back.Details())
}

func TestItemFieldAccess(t *testing.T) {
	t.Parallel()

	it := Item{Title: "T", Position: IntPtr(3), Extra: map[string]any{"region": "bj"}}
	v, ok := it.Field(FieldPosition)
	require.True(t, ok)
	require.Equal(t, 3, v)
	_, ok = it.Field(FieldHotValue)
	require.False(t, ok)
	require.Equal(t, "bj", it.FieldString("region"))

	it.SetField(FieldHotValue, 42.0)
	require.Equal(t, int64(42), *it.HotValue)
	it.SetField("author", "me")
	require.Equal(t, "me", it.Extra["author"])

	clone := it.Clone()
	*clone.Position = 9
	clone.Extra["region"] = "sh"
	require.Equal(t, 3, *it.Position)
	require.Equal(t, "bj", it.Extra["region"])
}

func TestToFloat(t *testing.T) {
	t.Parallel()

	for _, v := range []any{1, int64(1), 1.0, json.Number("1"), " 1 "} {
		f, ok := ToFloat(v)
		require.True(t, ok, "%T", v)
		require.InDelta(t, 1.0, f, 1e-9)
	}
	_, ok := ToFloat("n/a")
	require.False(t, ok)
	_, ok = ToFloat(nil)
	require.False(t, ok)
}

func TestCookieHeader(t *testing.T) {
	t.Parallel()

	c := PlatformCookie{Cookies: ParseCookieHeader(" b=2; a=1;; =x; broken"), Status: CookieActive}
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, c.Cookies)
	require.Equal(t, "a=1; b=2", c.Header())
	require.True(t, c.Usable())
	c.Status = CookieExpired
	require.False(t, c.Usable())
}

func TestCandidateStatusTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range ActiveStatuses {
		require.False(t, s.Terminal(), s)
	}
	require.True(t, StatusClosed.Terminal())
	require.True(t, StatusFaded.Terminal())
}

func TestTaskCloneAndActive(t *testing.T) {
	t.Parallel()

	next := int64(5)
	task := Task{SearchKeywords: []string{"a"}, NextRetryAt: &next, Status: TaskPending}
	require.True(t, task.Active())
	cp := task.Clone()
	cp.SearchKeywords[0] = "b"
	*cp.NextRetryAt = 9
	require.Equal(t, "a", task.SearchKeywords[0])
	require.Equal(t, int64(5), *task.NextRetryAt)
	require.False(t, Task{Status: TaskCompleted}.Active())
}
