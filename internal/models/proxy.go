package models

import "time"

// ProxyProtocol identifies the upstream proxy's wire protocol.
type ProxyProtocol string

const (
	ProxyHTTP   ProxyProtocol = "http"
	ProxyHTTPS  ProxyProtocol = "https"
	ProxySOCKS5 ProxyProtocol = "socks5"
)

// ProxyAuth holds optional credentials for an upstream proxy.
type ProxyAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProxyState is a snapshot of one upstream proxy's identity and health.
type ProxyState struct {
	ID       string        `json:"id"` // host:port[:user]
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Protocol ProxyProtocol `json:"protocol"`
	Auth     *ProxyAuth    `json:"auth,omitempty"`

	Healthy        bool          `json:"healthy"`
	LastCheckAt    time.Time     `json:"lastCheckAt"`
	ResponseTimeMs int64         `json:"responseTimeMs"`
	LastError      string        `json:"lastError,omitempty"`
	UsageCount     int           `json:"usageCount"`
	CoolingUntil   *time.Time    `json:"coolingUntil,omitempty"`
}

// ProxyFile is the on-disk JSON format for a proxy list.
type ProxyFile struct {
	Proxies     []ProxyFileEntry `json:"proxies"`
	LastUpdated time.Time        `json:"lastUpdated"`
}

// ProxyFileEntry is one proxy as stored in a ProxyFile.
type ProxyFileEntry struct {
	Host     string     `json:"host"`
	Port     int        `json:"port"`
	Protocol string     `json:"protocol"`
	Auth     *ProxyAuth `json:"auth,omitempty"`
}
