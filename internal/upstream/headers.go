package upstream

import (
	"net/http"
	"net/textproto"
	"strings"
)

// hopHeaders apply to a single connection and are never forwarded.
// Host and Content-Length are recomputed for the outbound request, and
// Accept-Encoding is left to the transport so bodies arrive decoded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
	"Content-Length",
	"Accept-Encoding",
}

// ForwardHeaders returns a copy of in without hop-by-hop headers,
// including any named by the Connection header.
func ForwardHeaders(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for k, vv := range in {
		out[k] = append([]string(nil), vv...)
	}

	for _, v := range in.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = textproto.TrimString(name); name != "" {
				out.Del(name)
			}
		}
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	return out
}
