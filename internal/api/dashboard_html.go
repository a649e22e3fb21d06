package api

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Keywatch</title>
<style>
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
:root,[data-theme="dark"]{
  --bg:#0f1117;--bg-card:#161b22;--bg-card-hover:#1c2129;--bg-input:#0d1117;
  --border:#30363d;--text:#e1e4e8;--text-muted:#8b949e;--text-dim:#484f58;
  --primary:#58a6ff;--primary-hover:#79b8ff;
  --green:#3fb950;--red:#f85149;
  --radius:8px;--radius-sm:4px;
}
[data-theme="light"]{
  --bg:#f6f8fa;--bg-card:#ffffff;--bg-card-hover:#f3f4f6;--bg-input:#f0f1f3;
  --border:#d0d7de;--text:#1f2328;--text-muted:#656d76;--text-dim:#8b949e;
  --primary:#0969da;--primary-hover:#0550ae;
  --green:#1a7f37;--red:#cf222e;
}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;background:var(--bg);color:var(--text);line-height:1.5;min-height:100vh}
button{cursor:pointer;font-family:inherit;font-size:inherit}

/* Layout */
.container{max-width:1100px;margin:0 auto;padding:0 24px 48px}
.columns{display:grid;grid-template-columns:repeat(auto-fit,minmax(420px,1fr));gap:24px;margin-top:24px}

/* Header */
header{background:var(--bg-card);border-bottom:1px solid var(--border);padding:12px 24px;position:sticky;top:0;z-index:100}
.header-inner{max-width:1100px;margin:0 auto;display:flex;align-items:center;gap:16px}
.header-title{font-size:20px;font-weight:700}
.header-badges{display:flex;gap:8px;align-items:center;margin-left:auto}
.badge{display:inline-flex;align-items:center;gap:4px;padding:2px 10px;border-radius:12px;font-size:12px;font-weight:600;border:1px solid var(--border)}
.badge-healthy{color:var(--green);border-color:var(--green)}
.badge-unhealthy{color:var(--red);border-color:var(--red)}

/* Panels */
.panel{background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);overflow:hidden}
.panel h2{font-size:16px;padding:16px 20px;border-bottom:1px solid var(--border);display:flex;align-items:center;gap:8px}
.panel h2 .count{font-size:12px;color:var(--text-muted);font-weight:400}
.add-form{display:flex;gap:8px;padding:12px 20px;border-bottom:1px solid var(--border)}
.add-form input{flex:1;background:var(--bg-input);color:var(--text);border:1px solid var(--border);border-radius:var(--radius-sm);padding:6px 10px;font-size:14px;outline:none}
.add-form input:focus{border-color:var(--primary)}
.btn{display:inline-flex;align-items:center;gap:6px;padding:6px 14px;border-radius:var(--radius);font-size:14px;font-weight:500;border:1px solid var(--border);background:var(--bg-card);color:var(--text);transition:.15s}
.btn:hover{background:var(--bg-card-hover)}
.btn-primary{background:var(--primary);border-color:var(--primary);color:#fff}
.btn-primary:hover{background:var(--primary-hover);border-color:var(--primary-hover)}
.btn-danger{color:var(--red);border-color:var(--red)}
.btn-danger:hover{background:rgba(248,81,73,.15)}
.btn-sm{padding:2px 10px;font-size:12px}

/* Table */
table{width:100%;border-collapse:collapse;font-size:14px}
th{text-align:left;padding:10px 20px;font-weight:600;color:var(--text-muted);border-bottom:1px solid var(--border);font-size:12px;text-transform:uppercase;letter-spacing:.5px}
td{padding:8px 20px;border-bottom:1px solid var(--border)}
tbody tr:hover{background:var(--bg-card-hover)}
tbody tr:last-child td{border-bottom:none}
td.num{text-align:right;font-variant-numeric:tabular-nums;color:var(--text-muted)}
td.actions{text-align:right;width:1%}
.empty-state{text-align:center;padding:32px 20px;color:var(--text-muted)}

/* Toast */
.toast-stack{position:fixed;bottom:20px;right:20px;z-index:400;display:flex;flex-direction:column-reverse;gap:8px}
.toast{padding:12px 16px;border-radius:var(--radius);font-size:14px;font-weight:500;box-shadow:0 4px 12px rgba(0,0,0,.3);min-width:260px;background:var(--bg-card)}
.toast-success{border:1px solid var(--green);color:var(--green)}
.toast-error{border:1px solid var(--red);color:var(--red)}
</style>
</head>
<body>
<header>
  <div class="header-inner">
    <div class="header-title">Keywatch</div>
    <div class="header-badges">
      <span class="badge" id="healthBadge">checking</span>
      <button class="btn btn-sm" id="themeToggle" type="button">Theme</button>
    </div>
  </div>
</header>

<div class="container">
  <div class="columns">
    <section class="panel" data-resource="channels" data-key="channel_id" data-counter="alertCount">
      <h2>Channels <span class="count"></span></h2>
      <form class="add-form">
        <input name="key" placeholder="Channel ID" autocomplete="off">
        <button class="btn btn-primary" type="submit">Add</button>
      </form>
      <table>
        <thead><tr><th>Channel ID</th><th>Alerts</th><th></th></tr></thead>
        <tbody></tbody>
      </table>
    </section>

    <section class="panel" data-resource="keywords" data-key="keyword" data-counter="frequency">
      <h2>Keywords <span class="count"></span></h2>
      <form class="add-form">
        <input name="key" placeholder="Keyword" autocomplete="off">
        <button class="btn btn-primary" type="submit">Add</button>
      </form>
      <table>
        <thead><tr><th>Keyword</th><th>Frequency</th><th></th></tr></thead>
        <tbody></tbody>
      </table>
    </section>
  </div>
</div>

<div class="toast-stack" id="toastStack"></div>

<script>
(function() {
  'use strict';

  // --- DOM refs ---
  var g = function(id) { return document.getElementById(id); };
  var elHealthBadge = g('healthBadge');
  var elToastStack = g('toastStack');

  // --- API helpers ---
  var apiBase = window.location.origin;

  function apiFetch(path, opts) {
    opts = opts || {};
    opts.headers = { 'Content-Type': 'application/json' };
    return fetch(apiBase + path, opts).then(function(resp) {
      if (resp.status === 204) return null;
      return resp.json().then(function(data) {
        if (!resp.ok) throw new Error(data.error || ('HTTP ' + resp.status));
        return data;
      });
    });
  }

  // --- Toast ---
  function toast(message, type) {
    var el = document.createElement('div');
    el.className = 'toast toast-' + (type || 'success');
    el.textContent = message;
    elToastStack.appendChild(el);
    setTimeout(function() { el.remove(); }, 3000);
  }

  // --- Rendering ---
  function cell(text, cls) {
    var td = document.createElement('td');
    if (cls) td.className = cls;
    td.textContent = text;
    return td;
  }

  function render(panel, records) {
    var key = panel.getAttribute('data-key');
    var counter = panel.getAttribute('data-counter');
    var tbody = panel.querySelector('tbody');
    panel.querySelector('.count').textContent = '(' + records.length + ')';

    tbody.textContent = '';
    if (records.length === 0) {
      var tr = document.createElement('tr');
      var td = cell('Nothing here yet', 'empty-state');
      td.colSpan = 3;
      tr.appendChild(td);
      tbody.appendChild(tr);
      return;
    }

    records.forEach(function(rec) {
      var tr = document.createElement('tr');
      tr.appendChild(cell(rec[key]));
      tr.appendChild(cell(String(rec[counter] || 0), 'num'));

      var actions = cell('', 'actions');
      var btn = document.createElement('button');
      btn.className = 'btn btn-danger btn-sm';
      btn.type = 'button';
      btn.textContent = 'Delete';
      btn.addEventListener('click', function() { remove(panel, rec._id); });
      actions.appendChild(btn);
      tr.appendChild(actions);

      tbody.appendChild(tr);
    });
  }

  // --- Actions ---
  function load(panel) {
    var res = panel.getAttribute('data-resource');
    return apiFetch('/api/' + res).then(function(records) {
      render(panel, records);
    }).catch(function(err) {
      console.error('failed to list ' + res, err);
    });
  }

  // A failed delete is logged and leaves the rendered list untouched.
  function remove(panel, id) {
    var res = panel.getAttribute('data-resource');
    apiFetch('/api/' + res + '/' + encodeURIComponent(id), { method: 'DELETE' }).then(function() {
      return load(panel);
    }).catch(function(err) {
      console.error('failed to delete from ' + res, err);
    });
  }

  function add(panel, value) {
    var res = panel.getAttribute('data-resource');
    var body = {};
    body[panel.getAttribute('data-key')] = value;
    return apiFetch('/api/' + res, { method: 'POST', body: JSON.stringify(body) }).then(function() {
      toast('Added ' + value);
      return load(panel);
    }).catch(function(err) {
      toast(err.message, 'error');
    });
  }

  function checkHealth() {
    fetch(apiBase + '/health').then(function(resp) {
      elHealthBadge.textContent = resp.ok ? 'healthy' : 'unhealthy';
      elHealthBadge.className = 'badge ' + (resp.ok ? 'badge-healthy' : 'badge-unhealthy');
    }).catch(function() {
      elHealthBadge.textContent = 'offline';
      elHealthBadge.className = 'badge badge-unhealthy';
    });
  }

  // --- Theme ---
  g('themeToggle').addEventListener('click', function() {
    var root = document.documentElement;
    var next = root.getAttribute('data-theme') === 'light' ? 'dark' : 'light';
    root.setAttribute('data-theme', next);
    try { localStorage.setItem('keywatch-theme', next); } catch (e) {}
  });
  try {
    var saved = localStorage.getItem('keywatch-theme');
    if (saved) document.documentElement.setAttribute('data-theme', saved);
  } catch (e) {}

  // --- Init ---
  Array.prototype.forEach.call(document.querySelectorAll('.panel'), function(panel) {
    var form = panel.querySelector('.add-form');
    form.addEventListener('submit', function(ev) {
      ev.preventDefault();
      var input = form.querySelector('input');
      var value = input.value.trim();
      if (!value) return;
      add(panel, value).then(function() { input.value = ''; });
    });
    load(panel);
  });
  checkHealth();
  setInterval(checkHealth, 30000);
})();
</script>
</body>
</html>
`
