// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"strings"
)

// ParseEndpoint splits an endpoint string into a network and address
// usable with net.Listen / net.Dial. Two forms are accepted:
//
//	tcp://host:port
//	unix:///path/to/socket
func ParseEndpoint(endpoint string) (network, address string, err error) {
	switch {
	case strings.HasPrefix(endpoint, "tcp://"):
		address = strings.TrimPrefix(endpoint, "tcp://")
		if address == "" {
			return "", "", fmt.Errorf("endpoint %q: missing address", endpoint)
		}
		return "tcp", address, nil
	case strings.HasPrefix(endpoint, "unix://"):
		address = strings.TrimPrefix(endpoint, "unix://")
		if address == "" {
			return "", "", fmt.Errorf("endpoint %q: missing socket path", endpoint)
		}
		return "unix", address, nil
	}
	return "", "", fmt.Errorf("endpoint %q: expected tcp:// or unix:// scheme", endpoint)
}
