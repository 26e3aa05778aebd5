package main

import (
	"fmt"
	"strconv"

	igd "github.com/go-i2p/go-igd"
)

func parseMappingArgs(args []string) (igd.Protocol, uint16, error) {
	proto, err := igd.ParseProtocol(args[0])
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("invalid port %q (must be 1-65535)", args[1])
	}
	return proto, uint16(port), nil
}
