package tg

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/larriantoniy/tg_session_web/internal/domain"
)

const proxyDialTimeout = 5 * time.Second

func isIPv6Literal(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() == nil // есть IP и это не IPv4 → IPv6
}

// CheckConnectivity пишет в лог, какие стеки адресов доступны. Ничего не блокирует.
func CheckConnectivity(logger *slog.Logger) {
	checkNetwork(logger, "tcp4", "8.8.8.8:53")
	checkNetwork(logger, "tcp6", "[2606:4700:4700::1111]:53")
}

func checkNetwork(logger *slog.Logger, network, addr string) {
	logger.Info("checking connectivity...", "network", network)

	conn, err := net.DialTimeout(network, addr, 3*time.Second)
	if err != nil {
		logger.Warn("network seems not working", "network", network, "error", err)
		return
	}
	_ = conn.Close()

	logger.Info("network OK", "network", network)
}

// checkProxy проверяет, что прокси принимает TCP. Без этого TDLib молча висит в Connecting.
func checkProxy(ctx context.Context, logger *slog.Logger, p *domain.ProxyConfig) error {
	if p == nil {
		logger.Debug("proxy disabled, skipping check")
		return nil
	}

	port := strconv.Itoa(int(p.Port))
	addr := net.JoinHostPort(p.Server, port)

	networks := []string{"tcp"}
	if net.ParseIP(p.Server) == nil {
		// hostname: сначала IPv6, потом IPv4
		networks = []string{"tcp6", "tcp4"}
	} else if isIPv6Literal(p.Server) {
		networks = []string{"tcp6"}
	}

	d := net.Dialer{Timeout: proxyDialTimeout}
	var lastErr error
	for _, network := range networks {
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			logger.Warn("proxy dial failed", "network", network, "addr", addr, "error", err)
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		_ = conn.Close()
		logger.Info("proxy reachable", "network", network, "addr", addr)
		return nil
	}

	return domain.Wrap(domain.KindConnect, "proxy", fmt.Errorf("proxy %s unreachable: %w", p, lastErr))
}
