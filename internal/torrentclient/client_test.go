package torrentclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsinTagFormat(t *testing.T) {
	require.Equal(t, "asin:B0ABCDEF12", AsinTag("B0ABCDEF12"))
}

func TestAddOptionsToMapIncludesOnlySetFields(t *testing.T) {
	m := AddOptions{}.toMap()
	require.Equal(t, "false", m["skip_checking"])
	require.NotContains(t, m, "savepath")
	require.NotContains(t, m, "category")
	require.NotContains(t, m, "tags")
}

func TestAddOptionsToMapJoinsTags(t *testing.T) {
	m := AddOptions{
		SavePath: "/library/incoming",
		Category: "bookarr",
		Tags:     []string{"asin:B0ABCDEF12", "audiobook"},
	}.toMap()

	require.Equal(t, "/library/incoming", m["savepath"])
	require.Equal(t, "bookarr", m["category"])
	require.Equal(t, "asin:B0ABCDEF12,audiobook", m["tags"])
}

func TestClientHealthyDefaultsFalseBeforeSetHealthy(t *testing.T) {
	c := &Client{}
	require.False(t, c.Healthy())

	c.setHealthy(true)
	require.True(t, c.Healthy())

	c.setHealthy(false)
	require.False(t, c.Healthy())
}

func TestAddMagnetRejectsWhenUnhealthy(t *testing.T) {
	c := &Client{}
	c.setHealthy(false)

	err := c.AddMagnet(context.Background(), "magnet:?xt=urn:btih:deadbeef", AddOptions{})
	require.Error(t, err)
}

func TestAddTorrentFileRejectsWhenUnhealthy(t *testing.T) {
	c := &Client{}
	c.setHealthy(false)

	err := c.AddTorrentFile(context.Background(), []byte("d8:announce..."), AddOptions{})
	require.Error(t, err)
}
