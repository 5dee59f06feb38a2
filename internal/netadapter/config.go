package netadapter

// ProxyConfig mirrors the proxy knobs the top-level config exposes for
// the network adapter: a corporate proxy may sit between the uploader
// and the chunk endpoint.
type ProxyConfig struct {
	// Mode is one of "", "no-proxy", "system", "basic", "ntlm".
	Mode     string
	Host     string
	Port     int
	User     string
	Password string
	// NoProxy is a comma-separated bypass list of hosts/CIDRs.
	NoProxy string
}
