//go:build linux

package socketcan

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// SetLinkUp sets IFF_UP on iface through rtnetlink (needs CAP_NET_ADMIN).
// Bitrate must already be configured; an interface that is up is left alone.
func SetLinkUp(iface string) error {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return fmt.Errorf("if %q: %w", iface, err)
	}
	if ifi.Flags&net.FlagUp != 0 {
		return nil
	}
	c, err := netlink.Dial(unix.NETLINK_ROUTE, &netlink.Config{})
	if err != nil {
		return fmt.Errorf("dial netlink: %w", err)
	}
	defer c.Close()

	req := netlink.Message{
		Header: netlink.Header{
			Flags: netlink.Request | netlink.Acknowledge,
			Type:  unix.RTM_NEWLINK,
		},
		Data: ifInfoMsg(int32(ifi.Index), unix.IFF_UP, unix.IFF_UP),
	}
	res, err := c.Execute(req)
	if err != nil {
		return fmt.Errorf("set %s up: %w", iface, err)
	}
	if len(res) > 1 {
		return fmt.Errorf("set %s up: expected 1 message, got %d", iface, len(res))
	}
	return nil
}

// ifInfoMsg encodes struct ifinfomsg for AF_UNSPEC.
func ifInfoMsg(index int32, flags, change uint32) []byte {
	buf := make([]byte, 4, unix.SizeofIfInfomsg)
	buf[0] = unix.AF_UNSPEC
	buf = binary.LittleEndian.AppendUint32(buf, uint32(index))
	buf = binary.LittleEndian.AppendUint32(buf, flags)
	buf = binary.LittleEndian.AppendUint32(buf, change)
	return buf
}
