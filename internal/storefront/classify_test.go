package storefront

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCapabilities(t *testing.T) {
	tests := []struct {
		name string
		html string
		want Capabilities
	}{
		{
			name: "marked product",
			html: `<div data-component-type="s-search-result"><h2><a href="/dp/1"><span>Laptop  Pro</span></a></h2></div>`,
			want: Capabilities{HasLink: true, HasTitle: true, Title: "Laptop Pro"},
		},
		{
			name: "unmarked product",
			html: `<div class="s-result-item"><a class="a-link-normal" href="/dp/2"><span class="a-text-normal">Mouse</span></a></div>`,
			want: Capabilities{HasLink: true, HasTitle: true, Title: "Mouse"},
		},
		{
			name: "banner",
			html: `<div class="s-result-item AdHolder"><img src="ad.png"></div>`,
			want: Capabilities{},
		},
		{
			name: "title without link",
			html: `<div><h2>Related searches</h2></div>`,
			want: Capabilities{HasTitle: true, Title: "Related searches"},
		},
		{
			name: "aria label title",
			html: `<div aria-label="Headphones"><a href="/dp/3"></a></div>`,
			want: Capabilities{HasLink: true, Title: "Headphones"},
		},
		{
			name: "marked placeholder",
			html: `<div data-component-type="s-search-result"><span>loading</span></div>`,
			want: Capabilities{},
		},
		{
			name: "other marker value",
			html: `<div data-component-type="sp-sponsored-result"><a href="/x">x</a></div>`,
			want: Capabilities{HasLink: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCapabilities(tt.html)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseCapabilities() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseCapabilities_Empty(t *testing.T) {
	_, err := ParseCapabilities("   ")
	assert.Error(t, err)
}

func TestParseCapabilities_MarkerAloneIsNotAProduct(t *testing.T) {
	c, err := ParseCapabilities(`<div data-component-type="s-search-result"><span>loading</span></div>`)
	require.NoError(t, err)
	assert.False(t, IsRealProduct(c))

	c, err = ParseCapabilities(`<div data-component-type="s-search-result"><h2>Sponsored brands</h2></div>`)
	require.NoError(t, err)
	assert.False(t, IsRealProduct(c), "a title without a link")
}

func TestIsRealProduct(t *testing.T) {
	assert.True(t, IsRealProduct(Capabilities{HasLink: true, HasTitle: true}))
	assert.True(t, IsRealProduct(Capabilities{HasMarker: true}))
	assert.False(t, IsRealProduct(Capabilities{HasLink: true}))
	assert.False(t, IsRealProduct(Capabilities{HasTitle: true}))
	assert.False(t, IsRealProduct(Capabilities{}))
}

func TestChooseThird(t *testing.T) {
	prod := Capabilities{HasLink: true, HasTitle: true}
	junk := Capabilities{}

	tests := []struct {
		name         string
		caps         []Capabilities
		wantIndex    int
		wantFiltered bool
	}{
		{"all real", []Capabilities{prod, prod, prod, prod}, 2, true},
		{"interleaved", []Capabilities{junk, prod, junk, prod, junk, prod, prod}, 5, true},
		{"too few real", []Capabilities{prod, junk, junk, prod}, 2, false},
		{"none real", []Capabilities{junk, junk, junk}, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, filtered, err := ChooseThird(tt.caps)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIndex, idx)
			assert.Equal(t, tt.wantFiltered, filtered)
		})
	}
}

func TestChooseThird_TooFew(t *testing.T) {
	idx, _, err := ChooseThird([]Capabilities{{HasLink: true, HasTitle: true}, {HasMarker: true}})
	assert.Error(t, err)
	assert.Equal(t, -1, idx)
}
