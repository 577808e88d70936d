package sefaz

// Access-key helpers. The engine assigns the 44-character key upon
// authorization; locally we only validate shape and verify the trailing
// check digit (módulo 11 over the first 43 digits).

// ChaveValida reports whether a key is 44 digits with a consistent check digit.
func ChaveValida(chave string) bool {
	if len(chave) != 44 {
		return false
	}
	for _, r := range chave {
		if r < '0' || r > '9' {
			return false
		}
	}
	return int(chave[43]-'0') == DigitoVerificador(chave[:43])
}

// DigitoVerificador computes the módulo-11 check digit of the 43-digit key body.
func DigitoVerificador(corpo string) int {
	peso := 2
	soma := 0
	for i := len(corpo) - 1; i >= 0; i-- {
		soma += int(corpo[i]-'0') * peso
		peso++
		if peso > 9 {
			peso = 2
		}
	}
	resto := soma % 11
	if resto == 0 || resto == 1 {
		return 0
	}
	return 11 - resto
}
