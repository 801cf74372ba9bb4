package filesystem

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	"github.com/google/uuid"
)

// JSONAddressArchive es un adaptador outbound que guarda las direcciones enriquecidas
// en un fichero JSON, indexadas por id de job. Get relee el fichero en cada llamada, así que
// otro proceso con la misma ruta ve lo guardado; Save reescribe el fichero completo.
// El mutex solo ordena las llamadas dentro del proceso: se espera un único escritor (el consumidor).
type JSONAddressArchive struct {
	filePath string
	mu       sync.Mutex // Mutex para evitar race conditions al leer/escribir el archivo.
}

// archivedAddress es el registro persistido por job.
type archivedAddress struct {
	JobID   uuid.UUID          `json:"jobId"`
	Address *jobDomain.Address `json:"address"`
}

// NewJSONAddressArchive es el constructor.
func NewJSONAddressArchive(filePath string) *JSONAddressArchive {
	return &JSONAddressArchive{filePath: filePath}
}

// Save guarda (o reemplaza) la dirección de un job.
// Si el fichero no existe, lo crea.
func (s *JSONAddressArchive) Save(ctx context.Context, jobID uuid.UUID, addr *jobDomain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. Leer todos los registros existentes.
	records, err := s.readAll()
	if err != nil {
		return err
	}

	// 2. Reemplazar o añadir el registro del job.
	replaced := false
	for _, r := range records {
		if r.JobID == jobID {
			r.Address = addr
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, &archivedAddress{JobID: jobID, Address: addr})
	}

	// 3. Serializar con formato indentado.
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	// 4. Escribir en un temporal y renombrar para no dejar el fichero a medias.
	tmp, err := os.CreateTemp(filepath.Dir(s.filePath), filepath.Base(s.filePath)+".*.tmp")
	if err != nil {
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.filePath)
}

// Get devuelve la dirección guardada de un job.
func (s *JSONAddressArchive) Get(ctx context.Context, jobID uuid.UUID) (*jobDomain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.JobID == jobID && r.Address != nil {
			return r.Address, nil
		}
	}
	return nil, jobDomain.ErrAddressNotFound
}

// readAll es un helper interno no concurrente.
func (s *JSONAddressArchive) readAll() ([]*archivedAddress, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		// Si el fichero no existe, devolvemos una lista vacía sin error.
		if os.IsNotExist(err) {
			return []*archivedAddress{}, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return []*archivedAddress{}, nil
	}

	var records []*archivedAddress
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// EnsureDir crea el directorio del fichero si no existe.
func (s *JSONAddressArchive) EnsureDir() error {
	dir := filepath.Dir(s.filePath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
