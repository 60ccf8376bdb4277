package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bookarr/bookarr/internal/models"
)

// Keys used across the request/indexer/ranking/processor components
// (§6 "Persisted config keys").
const (
	KeyLibraryPath       = "library_path"
	KeyFolderPattern      = "folder_pattern"
	KeyFilePattern        = "file_pattern"
	KeyUseSeriesFolders   = "use_series_folders"
	KeyQbitHost           = "qbit_host"
	KeyQbitPort           = "qbit_port"
	KeyQbitUser           = "qbit_user"
	KeyQbitPass           = "qbit_pass"
	KeyQbitCategory       = "qbit_category"
	KeyQbitSavePath       = "qbit_save_path"
	KeyQbitEnabled        = "qbit_enabled"
	KeyQbitCompleteAction = "qbit_complete_action"
	KeyProwlarrBaseURL    = "prowlarr_base_url"
	KeyProwlarrAPIKey     = "prowlarr_api_key"
	KeyProwlarrCategories = "prowlarr_categories"
	KeyProwlarrIndexers   = "prowlarr_indexers"
	KeyProwlarrSourceTTL  = "prowlarr_source_ttl"
	KeyQualityFLAC        = "quality_flac"
	KeyQualityM4B         = "quality_m4b"
	KeyQualityMP3         = "quality_mp3"
	KeyQualityUnknownAudio = "quality_unknown_audio"
	KeyQualityUnknown     = "quality_unknown"
	KeyMinSeeders         = "min_seeders"
	KeyNameExistsRatio    = "name_exists_ratio"
	KeyTitleExistsRatio   = "title_exists_ratio"
	KeyIndexerFlags       = "indexer_flags"
	KeyAutoDownload       = "auto_download"
	KeyDefaultRegion      = "default_region"
	KeyABSBaseURL         = "abs_base_url"
	KeyABSAPIToken        = "abs_api_token"
	KeyABSLibraryID       = "abs_library_id"
	KeyABSCheckDownloaded = "abs_check_downloaded"
)

// regionTLD is the lowercase region code -> TLD table used to build
// region-scoped metadata provider URLs.
var regionTLD = map[string]string{
	"us": ".com",
	"ca": ".ca",
	"uk": ".co.uk",
	"au": ".com.au",
	"fr": ".fr",
	"de": ".de",
	"jp": ".co.jp",
	"it": ".it",
	"in": ".in",
	"es": ".es",
	"br": ".com.br",
}

// RegionTLD looks up the TLD for a lowercase region code, falling back to
// "us" for anything unrecognized.
func RegionTLD(region string) string {
	if tld, ok := regionTLD[strings.ToLower(region)]; ok {
		return tld
	}
	return regionTLD["us"]
}

// DefaultRegion returns the configured default region, "us" if unset.
func (s *Store) DefaultRegion() string {
	return s.Get(KeyDefaultRegion, "us")
}

// QualityBands returns the five configured quality bands in the fixed
// order the ranking engine expects (§4.G).
func (s *Store) QualityBands() ([]models.QualityBand, error) {
	names := []struct {
		key   string
		label string
	}{
		{KeyQualityFLAC, "flac"},
		{KeyQualityM4B, "m4b"},
		{KeyQualityMP3, "mp3"},
		{KeyQualityUnknownAudio, "unknown_audio"},
		{KeyQualityUnknown, "unknown"},
	}

	defaults := map[string]string{
		KeyQualityFLAC:         "800|1500",
		KeyQualityM4B:          "48|160",
		KeyQualityMP3:          "96|320",
		KeyQualityUnknownAudio: "32|320",
		KeyQualityUnknown:      "0|9999",
	}

	bands := make([]models.QualityBand, 0, len(names))
	for _, n := range names {
		raw := s.Get(n.key, defaults[n.key])
		from, to, err := parseKbitsRange(raw)
		if err != nil {
			return nil, fmt.Errorf("config: quality band %s: %w", n.label, err)
		}
		bands = append(bands, models.QualityBand{Name: n.label, FromKbits: from, ToKbits: to})
	}
	return bands, nil
}

func parseKbitsRange(raw string) (from, to int, err error) {
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected from|to, got %q", raw)
	}
	from, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid from_kbits %q: %w", parts[0], err)
	}
	to, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid to_kbits %q: %w", parts[1], err)
	}
	return from, to, nil
}

// IndexerFlagScores parses the configured flag -> score list.
func (s *Store) IndexerFlagScores() ([]models.IndexerFlagScore, error) {
	raw := s.Get(KeyIndexerFlags, "[]")
	var scores []models.IndexerFlagScore
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return nil, fmt.Errorf("config: indexer_flags: %w", err)
	}
	return scores, nil
}

// ProwlarrCategories parses the comma-separated int list.
func (s *Store) ProwlarrCategories() []int {
	return parseIntList(s.Get(KeyProwlarrCategories, ""))
}

// ProwlarrIndexers parses the comma-separated int list.
func (s *Store) ProwlarrIndexers() []int {
	return parseIntList(s.Get(KeyProwlarrIndexers, ""))
}

func parseIntList(raw string) []int {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

const (
	defaultFolderPattern = "{author}/{title} ({year})"
	defaultFilePattern   = "{title}-{year}-{part}"
)

// LibraryRoot returns the configured library root directory.
func (s *Store) LibraryRoot() string {
	return s.Get(KeyLibraryPath, "")
}

// FolderPattern returns the configured destination-folder template (§4.K).
func (s *Store) FolderPattern() string {
	return s.Get(KeyFolderPattern, defaultFolderPattern)
}

// FilePattern returns the configured destination-filename template (§4.K).
func (s *Store) FilePattern() string {
	return s.Get(KeyFilePattern, defaultFilePattern)
}

// UseSeriesFolders reports whether a folder_pattern lacking {series}
// should be overridden to the <author>/<series>/<title> layout (§4.K).
func (s *Store) UseSeriesFolders() bool {
	return s.GetBool(KeyUseSeriesFolders, false)
}

// CompleteAction returns the configured torrent-completion transfer mode.
func (s *Store) CompleteAction() models.CompleteAction {
	switch s.Get(KeyQbitCompleteAction, string(models.ActionHardlink)) {
	case string(models.ActionCopy):
		return models.ActionCopy
	case string(models.ActionMove):
		return models.ActionMove
	default:
		return models.ActionHardlink
	}
}
