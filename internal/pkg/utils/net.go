// internal/pkg/utils/net.go
package utils

import (
	"net"

	"github.com/pkg/errors"
)

// GetOutboundIP 获取本机对外通信使用的 IP，用于服务注册。
// UDP dial 不会真正发包，只是让内核选一个出口地址。
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", errors.Wrap(err, "determine outbound ip")
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
