package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent_MaxBytesBoundary(t *testing.T) {
	ok := strings.Repeat("a", MaxContentBytes)
	_, err := Content(ok)
	require.NoError(t, err)

	tooBig := strings.Repeat("a", MaxContentBytes+1)
	_, err = Content(tooBig)
	require.Error(t, err)
}

func TestContent_NullByte(t *testing.T) {
	_, err := Content("hello\x00world")
	require.Error(t, err)
}

func TestContent_ZeroWidthBoundary(t *testing.T) {
	ten := strings.Repeat("​", 10)
	_, err := Content("ok" + ten)
	require.NoError(t, err)

	eleven := strings.Repeat("​", 11)
	_, err = Content("ok" + eleven)
	require.Error(t, err)
}

func TestContent_BidiOverrideRejected(t *testing.T) {
	_, err := Content("safe‮flip")
	require.Error(t, err)
}

func TestContent_DangerousScheme(t *testing.T) {
	_, err := Content("click javascript:alert(1)")
	require.Error(t, err)
}

func TestContent_StripsHTMLTags(t *testing.T) {
	out, err := Content("hello <script>bad()</script> world")
	require.NoError(t, err)
	assert.Equal(t, "hello bad() world", out)
}

func TestContent_ControlCharRatio(t *testing.T) {
	// Below 10% control chars, with tab/newline excluded from the count.
	ok := "a\tb\nc" + strings.Repeat("d", 40)
	_, err := Content(ok)
	require.NoError(t, err)

	bad := strings.Repeat("\x01", 5) + strings.Repeat("d", 10)
	_, err = Content(bad)
	require.Error(t, err)
}

func TestMinLen_Boundary(t *testing.T) {
	require.Error(t, MinLen("rationale", "123456789", 10))
	require.NoError(t, MinLen("rationale", "1234567890", 10))
}

func TestMinLen_TrimsWhitespace(t *testing.T) {
	require.Error(t, MinLen("rationale", "   123456789   ", 10))
}

func TestNamespace(t *testing.T) {
	require.NoError(t, Namespace(""))
	require.NoError(t, Namespace("default"))
	require.NoError(t, Namespace("prod-1_beta"))
	require.Error(t, Namespace("prod/x"))
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-1))
	assert.Equal(t, 1.0, Clamp01(2))
	assert.Equal(t, 0.5, Clamp01(0.5))
}
