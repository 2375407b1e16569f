package serverconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
)

func TestParsePropertyLine(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		want  Property
		found bool
	}{
		{"simple", "gamemode=survival", Property{"gamemode", "survival"}, true},
		{"first equals splits", "motd=a=b", Property{"motd", "a=b"}, true},
		{"empty value", "level-seed=", Property{"level-seed", ""}, true},
		{"carriage return", "pvp=true\r", Property{"pvp", "true"}, true},
		{"dollar artifact", "max-players=20$", Property{"max-players", "20"}, true},
		{"comment", "#Minecraft server properties", Property{}, false},
		{"indented comment", "   # note=value", Property{}, false},
		{"blank", "   ", Property{}, false},
		{"no equals", "garbage", Property{}, false},
		{"empty key", "=value", Property{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := parsePropertyLine(tt.line)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseProperties(t *testing.T) {
	input := "#Minecraft server properties\n#Sun Oct 18 12:00:00 UTC 2026\n" +
		"gamemode=survival\n\nmotd=A Minecraft Server\ngamemode=creative\n"

	properties, err := ParseProperties(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []Property{
		{"gamemode", "survival"},
		{"motd", "A Minecraft Server"},
		{"gamemode", "creative"},
	}, properties)
}

func TestRenderProperties(t *testing.T) {
	overrides := map[string]string{"max-players": "5", "motd": "hello"}
	defaults := map[string]string{"max-players": "20", "difficulty": "easy"}

	assert.Equal(t, propertiesBanner+"difficulty=easy\nmax-players=5\nmotd=hello\n",
		string(RenderProperties(overrides, defaults)))

	assert.Equal(t, propertiesBanner, string(RenderProperties(nil, nil)))
}

func TestMergeProperties(t *testing.T) {
	tests := []struct {
		name          string
		found         []Property
		overrides     map[string]string
		defaults      map[string]string
		wantOverrides map[string]string
		wantDefaults  map[string]string
		wantChanged   bool
	}{
		{
			name:          "new key lands in defaults",
			found:         []Property{{"spawn-npcs", "true"}},
			overrides:     map[string]string{},
			defaults:      map[string]string{},
			wantOverrides: map[string]string{},
			wantDefaults:  map[string]string{"spawn-npcs": "true"},
			wantChanged:   true,
		},
		{
			name:          "drifted override updated in place",
			found:         []Property{{"motd", "edited by hand"}},
			overrides:     map[string]string{"motd": "hello"},
			defaults:      map[string]string{},
			wantOverrides: map[string]string{"motd": "edited by hand"},
			wantDefaults:  map[string]string{},
			wantChanged:   true,
		},
		{
			name:          "drifted default updated in place",
			found:         []Property{{"gamemode", "creative"}},
			overrides:     map[string]string{},
			defaults:      map[string]string{"gamemode": "survival"},
			wantOverrides: map[string]string{},
			wantDefaults:  map[string]string{"gamemode": "creative"},
			wantChanged:   true,
		},
		{
			name:          "unchanged values",
			found:         []Property{{"motd", "hello"}, {"pvp", "true"}},
			overrides:     map[string]string{"motd": "hello"},
			defaults:      map[string]string{"pvp": "true"},
			wantOverrides: map[string]string{"motd": "hello"},
			wantDefaults:  map[string]string{"pvp": "true"},
			wantChanged:   false,
		},
		{
			name:          "last duplicate wins",
			found:         []Property{{"difficulty", "easy"}, {"difficulty", "hard"}},
			overrides:     map[string]string{},
			defaults:      map[string]string{},
			wantOverrides: map[string]string{},
			wantDefaults:  map[string]string{"difficulty": "hard"},
			wantChanged:   true,
		},
		{
			name:          "key in both maps removed from defaults",
			found:         nil,
			overrides:     map[string]string{"max-players": "5"},
			defaults:      map[string]string{"max-players": "20"},
			wantOverrides: map[string]string{"max-players": "5"},
			wantDefaults:  map[string]string{},
			wantChanged:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := mergeProperties(tt.found, tt.overrides, tt.defaults)
			assert.Equal(t, tt.wantChanged, len(changed) > 0)
			assert.Equal(t, tt.wantOverrides, tt.overrides)
			assert.Equal(t, tt.wantDefaults, tt.defaults)
		})
	}
}

func TestParseProperties_LongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	input := "motd=" + long + "\ngamemode=survival"

	properties, err := ParseProperties(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []Property{
		{"motd", long},
		{"gamemode", "survival"},
	}, properties)
}

func TestValidateProperty(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		valid bool
	}{
		{"plain", "motd", "A Minecraft Server", true},
		{"equals in value", "motd", "a=b", true},
		{"leading space in value", "motd", "  centered", true},
		{"empty value", "level-seed", "", true},
		{"empty key", "", "x", false},
		{"padded key", " motd", "x", false},
		{"comment key", "#motd", "x", false},
		{"equals in key", "a=b", "c", false},
		{"newline in key", "mo\ntd", "x", false},
		{"newline in value", "motd", "hi\nonline-mode=false", false},
		{"carriage return in value", "motd", "hi\r", false},
		{"trailing dollar", "motd", "costs 5$", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProperty(tt.key, tt.value)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.IsValidationError(err))
		})
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	overrides := map[string]string{"motd": "a=b", "level-seed": "", "banner": "  centered"}
	defaults := map[string]string{"gamemode": "survival", "motd": "ignored"}

	properties, err := ParseProperties(strings.NewReader(string(RenderProperties(overrides, defaults))))
	require.NoError(t, err)

	got := make(map[string]string)
	for _, property := range properties {
		got[property.Key] = property.Value
	}
	assert.Equal(t, map[string]string{
		"banner":     "  centered",
		"gamemode":   "survival",
		"level-seed": "",
		"motd":       "a=b",
	}, got)
}
