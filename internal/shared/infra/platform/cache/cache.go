// Package cache guarda copias de lectura de los jobs. Un fallo de caché nunca debe
// fallar la petición: los llamadores lo registran y siguen contra el almacén.
package cache

import "context"

// Cache es una caché clave-valor con valores serializados.
type Cache interface {
	// Get rellena dest (puntero) y devuelve true en un hit; (false, nil) en un miss.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Set guarda val durante ttlSecs segundos; 0 usa el TTL por defecto de la implementación.
	Set(ctx context.Context, key string, val any, ttlSecs int) error
	Delete(ctx context.Context, key string) error
}
