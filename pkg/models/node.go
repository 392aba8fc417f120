package models

import (
	"net"
	"strconv"
	"strings"
)

// NodeType is the inventory category of a node.
type NodeType string

const (
	NodeServer        NodeType = "server"
	NodeWorkstation   NodeType = "workstation"
	NodeNetworkDevice NodeType = "network_device"
)

// ClassKind selects the command backend for a node.
type ClassKind string

const (
	ClassPosix         ClassKind = "posix"
	ClassWindows       ClassKind = "windows"
	ClassNetworkDevice ClassKind = "network_device"
	ClassUnsupported   ClassKind = "unsupported"
)

// DeviceFamily identifies a network device CLI dialect, e.g. cisco_ios.
type DeviceFamily string

// NodeClass is resolved once when a node enters the inventory.
type NodeClass struct {
	Kind   ClassKind    `json:"kind"`
	Family DeviceFamily `json:"family,omitempty"`
}

// CommandFamily returns the template key used for this class. Unrecognized device
// families fall back to the cisco key.
func (c NodeClass) CommandFamily() string {
	switch c.Kind {
	case ClassPosix:
		return FamilyLinux
	case ClassWindows:
		return FamilyWindows
	case ClassNetworkDevice:
		f := strings.ToLower(string(c.Family))
		switch {
		case strings.HasPrefix(f, "cisco"):
			return FamilyCisco
		case strings.HasPrefix(f, "juniper"):
			return FamilyJuniper
		case strings.HasPrefix(f, "palo_alto"):
			return FamilyPaloAlto
		default:
			return FamilyCisco
		}
	default:
		return ""
	}
}

// InfrastructureNode is a managed target. Identity is immutable; the engine only reads it.
type InfrastructureNode struct {
	ID        string            `json:"id" yaml:"id"`
	Hostname  string            `json:"hostname" yaml:"hostname"`
	IPAddress string            `json:"ip_address" yaml:"ip_address"`
	Port      int               `json:"port,omitempty" yaml:"port"`
	NodeType  NodeType          `json:"node_type" yaml:"node_type"`
	OSType    string            `json:"os_type" yaml:"os_type"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata"`
	Class     NodeClass         `json:"class" yaml:"-"`
}

var posixOS = map[string]struct{}{
	"linux": {}, "ubuntu": {}, "centos": {}, "debian": {}, "rhel": {}, "unix": {},
}

var windowsOS = map[string]struct{}{
	"windows": {}, "windows_server": {}, "windows_workstation": {},
}

var networkNodeTypes = map[string]struct{}{
	"network_device": {}, "router": {}, "switch": {}, "firewall": {}, "load_balancer": {},
}

// Classify derives the node class from the free-form inventory strings.
func Classify(nodeType NodeType, osType string, metadata map[string]string) NodeClass {
	os := strings.ToLower(strings.TrimSpace(osType))
	if _, ok := posixOS[os]; ok {
		return NodeClass{Kind: ClassPosix}
	}
	if _, ok := windowsOS[os]; ok {
		return NodeClass{Kind: ClassWindows}
	}
	if _, ok := networkNodeTypes[strings.ToLower(strings.TrimSpace(string(nodeType)))]; ok {
		family := strings.ToLower(strings.TrimSpace(metadata["device_type"]))
		if family == "" {
			family = os
		}
		if family == "" {
			family = "cisco"
		}
		return NodeClass{Kind: ClassNetworkDevice, Family: DeviceFamily(family)}
	}
	return NodeClass{Kind: ClassUnsupported}
}

// NewNode returns n with its class resolved.
func NewNode(n InfrastructureNode) InfrastructureNode {
	n.Class = Classify(n.NodeType, n.OSType, n.Metadata)
	return n
}

// Address returns host:port for the node, using defaultPort when none is set.
func (n InfrastructureNode) Address(defaultPort int) string {
	host := n.IPAddress
	if host == "" {
		host = n.Hostname
	}
	port := n.Port
	if port <= 0 {
		port = defaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
