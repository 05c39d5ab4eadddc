package tg

import (
	"github.com/zelenin/go-tdlib/client"

	"github.com/larriantoniy/tg_session_web/internal/domain"
)

// tdParams собирает параметры TDLib для одного клиента.
func tdParams(apiID int32, apiHash string, dbDir, filesDir string, opts Options) *client.SetTdlibParametersRequest {
	lang := opts.LangCode
	if lang == "" {
		lang = "en"
	}

	systemVersion := opts.SystemVersion
	if systemVersion == "" {
		systemVersion = "Windows 10"
	}

	appVersion := opts.AppVersion
	if appVersion == "" {
		appVersion = "2.0"
	}

	deviceModel := opts.DeviceModel
	if deviceModel == "" {
		deviceModel = "Desktop"
	}

	// базы сообщений и чатов не нужны: после выдачи сессии каталог удаляется
	return &client.SetTdlibParametersRequest{
		UseTestDc:           false,
		DatabaseDirectory:   dbDir,
		FilesDirectory:      filesDir,
		UseFileDatabase:     false,
		UseChatInfoDatabase: false,
		UseMessageDatabase:  false,
		UseSecretChats:      false,
		ApiId:               apiID,
		ApiHash:             apiHash,
		SystemLanguageCode:  lang,
		DeviceModel:         deviceModel,
		SystemVersion:       systemVersion,
		ApplicationVersion:  appVersion,
	}
}

// proxyOption переводит доменный прокси в опцию клиента. nil - прямое подключение.
func proxyOption(p *domain.ProxyConfig) (client.Option, error) {
	req, err := proxyRequest(p)
	if err != nil || req == nil {
		return nil, err
	}
	return client.WithProxy(req), nil
}

func proxyRequest(p *domain.ProxyConfig) (*client.AddProxyRequest, error) {
	if p == nil {
		return nil, nil
	}

	req := &client.AddProxyRequest{
		Server: p.Server,
		Port:   p.Port,
		Enable: true,
	}

	switch p.Kind {
	case domain.ProxySocks5:
		req.Type = &client.ProxyTypeSocks5{
			Username: p.Username,
			Password: p.Password,
		}
	case domain.ProxyHTTP:
		req.Type = &client.ProxyTypeHttp{
			Username: p.Username,
			Password: p.Password,
			HttpOnly: false,
		}
	case domain.ProxySocks4:
		// TDLib умеет только SOCKS5, HTTP и MTProto
		return nil, domain.ConfigErrorf("proxy_type socks4 is not supported by TDLib, use socks5 or http")
	default:
		return nil, domain.ConfigErrorf("unsupported proxy_type %q", p.Kind)
	}
	return req, nil
}
