package logger

import "log/slog"

// Error cria o atributo "error". Se err for nil, retorna um Attr vazio.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Policy registra o nome da policy de rate limit sob "policy".
func Policy(name string) slog.Attr {
	return slog.String("policy", name)
}

func Path(p string) slog.Attr {
	return slog.String("path", p)
}

// ClientAddr nunca recebe a credencial: só o endereço de rede.
func ClientAddr(addr string) slog.Attr {
	return slog.String("client_addr", addr)
}

func RetryAfter(seconds int) slog.Attr {
	return slog.Int("retry_after", seconds)
}
