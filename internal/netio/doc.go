// Package netio provides link-layer frame I/O for the regorus engine.
//
// On Linux each monitored interface is backed by an AF_PACKET socket bound
// to the regorus EtherType, resolved by name through rtnetlink
// (github.com/vishvananda/netlink). A Receiver runs one read loop per
// interface and hands every frame to the engine; a link monitor turns
// RTM_NEWLINK / RTM_DELLINK notifications into InterfaceEvents.
package netio
