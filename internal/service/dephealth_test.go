// dephealth_test.go — unit-тесты формирования URL объектного хранилища.
package service

import (
	"testing"
)

// TestObjectStoreURL проверяет формирование URL для HTTP checker.
func TestObjectStoreURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		useSSL   bool
		want     string
		wantErr  bool
	}{
		{
			name:     "host:port без TLS",
			endpoint: "minio:9000",
			want:     "http://minio:9000",
		},
		{
			name:     "host:port с TLS",
			endpoint: "s3.example.com:9443",
			useSSL:   true,
			want:     "https://s3.example.com:9443",
		},
		{
			name:     "без порта — дефолт 80",
			endpoint: "minio",
			want:     "http://minio:80",
		},
		{
			name:     "без порта с TLS — дефолт 443",
			endpoint: "s3.example.com",
			useSSL:   true,
			want:     "https://s3.example.com:443",
		},
		{
			name:     "IP-адрес с портом",
			endpoint: "192.168.1.100:9000",
			want:     "http://192.168.1.100:9000",
		},
		{
			name:     "пустой endpoint",
			endpoint: "",
			wantErr:  true,
		},
		{
			name:     "endpoint со схемой",
			endpoint: "http://minio:9000",
			wantErr:  true,
		},
		{
			name:     "endpoint с path",
			endpoint: "minio:9000/bucket",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ObjectStoreURL(tt.endpoint, tt.useSSL)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ObjectStoreURL(%q) — ожидалась ошибка, получено %q", tt.endpoint, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ObjectStoreURL(%q) — неожиданная ошибка: %v", tt.endpoint, err)
			}
			if got != tt.want {
				t.Errorf("ObjectStoreURL(%q) = %q, ожидалось %q", tt.endpoint, got, tt.want)
			}
		})
	}
}
