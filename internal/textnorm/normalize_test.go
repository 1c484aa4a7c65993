package textnorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lower and trim", "  Customer ZIP Code  ", "customer zip code"},
		{"newlines", "postal\r\ncode\nvalue", "postal code value"},
		{"whitespace runs", "a \t\t b", "a b"},
		{"punctuation", "cust_zip-cd, v1.2 (primary)!", "cust_zip-cd, v1.2 primary"},
		{"accents kept", "Código Postal", "código postal"},
		{"fullwidth folded", "ＡＢＣ１２", "abc12"},
		{"ligature folded", "ﬁle", "file"},
		{"removal leaves no double space", "a @ b", "a b"},
		{"only noise", "¡¿!?", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

var idempotenceSeeds = []string{
	"",
	"Customer Postal Code",
	"a @ b # c",
	"½ cup",
	"ℌello Ⅻ",
	"école",
	" nbsp space em",
	"tab\tsep\r\nline",
	"ﬀ ﬂ ㎏",
	"MIXED case With ÜMLAUTS and ß",
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, in := range idempotenceSeeds {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func FuzzNormalize(f *testing.F) {
	for _, seed := range idempotenceSeeds {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, in string) {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize(%q) = %q, normalizing again gives %q", in, once, twice)
		}
		if strings.TrimSpace(once) != once {
			t.Fatalf("Normalize(%q) = %q has surrounding whitespace", in, once)
		}
	})
}

func TestNormalizeAny(t *testing.T) {
	s := "Hello World"
	var nilPtr *string

	assert.Equal(t, "hello world", NormalizeAny(s))
	assert.Equal(t, "hello world", NormalizeAny(&s))
	assert.Equal(t, "", NormalizeAny(nil))
	assert.Equal(t, "", NormalizeAny(nilPtr))
	assert.Equal(t, "", NormalizeAny(42))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, SplitList(" A | B ||C ", "|"))
	assert.Nil(t, SplitList("   ", "|"))
	assert.Equal(t, []string{"x", "y"}, SplitList("x;y", ";"))
}

func TestChunk(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Chunk([]int{1, 2, 3, 4, 5}, 2))
	assert.Nil(t, Chunk([]int{}, 3))
	assert.Nil(t, Chunk([]int{1}, 0))
}

func TestParseNumbers(t *testing.T) {
	assert.Equal(t, 12, ParseInt("12", 0))
	assert.Equal(t, 12, ParseInt("12.0", 0))
	assert.Equal(t, 7, ParseInt("12.5", 7))
	assert.Equal(t, -1, ParseInt("abc", -1))
	assert.InDelta(t, 0.65, ParseFloat(" 0.65 ", 0), 1e-9)
	assert.InDelta(t, 1.5, ParseFloat("", 1.5), 1e-9)
}
