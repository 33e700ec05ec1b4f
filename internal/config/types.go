package config

type Config struct {
	DataDir            string `yaml:"data_dir"`
	CacheDir           string `yaml:"-"`
	CacheLimitBytes    int64  `yaml:"cache_limit"`
	ListenAddr         string `yaml:"listen_addr"`
	DefaultBitrate     int    `yaml:"default_bitrate"` // kbps
	MaxBitrate         int    `yaml:"max_bitrate"`     // kbps
	Debug              bool   `yaml:"debug"`
	YouTubeCookiesPath string `yaml:"youtube_cookies_path"`
	YouTubePOToken     string `yaml:"youtube_po_token"`
}

// MinBitrate is the lowest MP3 bitrate a client may request.
const MinBitrate = 32

// ClampBitrate maps a requested bitrate onto the allowed range; 0 selects
// the default.
func (c *Config) ClampBitrate(kbps int) int {
	if kbps <= 0 {
		kbps = c.DefaultBitrate
	}
	if kbps < MinBitrate {
		return MinBitrate
	}
	if kbps > c.MaxBitrate {
		return c.MaxBitrate
	}
	return kbps
}
