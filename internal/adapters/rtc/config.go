// Package rtc builds the peer-connection configuration handed to
// clients. Media itself flows peer-to-peer; the server only supplies
// ICE servers and relays opaque signaling blobs.
package rtc

import "github.com/pion/webrtc/v4"

// ClientConfig assembles the webrtc.Configuration clients bootstrap
// their peer connections with.
func ClientConfig(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	servers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, url := range stunServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}
	return webrtc.Configuration{ICEServers: servers}
}
